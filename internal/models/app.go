package models

import (
	"encoding/base32"
	"time"

	"github.com/simonsobs/soauth/internal/util"

	"golang.org/x/crypto/bcrypt"
)

// Base32 characters, but lowercased.
const lowerBase32Chars = "abcdefghijklmnopqrstuvwxyz234567"

// base32 encoder that uses lowered characters without padding.
var base32Lower = base32.NewEncoding(lowerBase32Chars).WithPadding(base32.NoPadding)

// ClientSecretPrefix marks client secrets so code scanners can find leaked ones.
const ClientSecretPrefix = "soa_"

// App is a downstream application that receives tokens signed with its own key pair.
type App struct {
	ID               string    `gorm:"primaryKey;type:varchar(36)"         json:"app_id"`
	Name             string    `gorm:"type:varchar(255);not null"          json:"name"`
	OwnerID          string    `gorm:"type:varchar(36);index;not null"     json:"owner_id"`
	Domain           string    `gorm:"type:varchar(500);not null"          json:"domain"`
	RedirectURL      string    `gorm:"type:varchar(500);not null"          json:"redirect_url"`
	KeyPairType      string    `gorm:"type:varchar(32);not null"           json:"key_pair_type"`
	PublicKey        string    `gorm:"type:text;not null"                  json:"public_key"`
	PrivateKey       string    `gorm:"type:text;not null"                  json:"-"` // age encrypted PKCS#8 PEM
	ClientSecretHash string    `gorm:"not null"                            json:"-"` // bcrypt hashed secret
	APIAccess        bool      `gorm:"not null;default:false"              json:"api_access"`
	VisibilityGrant  string    `gorm:"type:varchar(255)"                   json:"visibility_grant,omitempty"`
	Managed          bool      `gorm:"not null;default:false;index"        json:"managed"` // the server's own app
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// GenerateClientSecret generates a new client secret, stores its hash, and returns the plaintext.
func (app *App) GenerateClientSecret() (string, error) {
	rBytes, err := util.CryptoRandomBytes(32)
	if err != nil {
		return "", err
	}
	clientSecret := ClientSecretPrefix + base32Lower.EncodeToString(rBytes)

	hashedSecret, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	app.ClientSecretHash = string(hashedSecret)
	return clientSecret, nil
}

// ValidateClientSecret validates the given secret against the stored hash
func (app *App) ValidateClientSecret(secret []byte) bool {
	if app.ClientSecretHash == "" || len(secret) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(app.ClientSecretHash), secret) == nil
}

// DomainHost returns the lower-cased host of the app's registered domain.
func (app *App) DomainHost() string {
	return util.Hostname(app.Domain)
}

// VisibleTo reports whether a principal holding grants may use the app.
func (app *App) VisibleTo(grants GrantSet) bool {
	if app.VisibilityGrant == "" {
		return true
	}
	return grants.Has(app.VisibilityGrant)
}

// TableName overrides the table name used by App to `apps`
func (App) TableName() string {
	return "apps"
}
