package auth

import (
	"context"
	"net/url"
	"strings"

	"github.com/simonsobs/soauth/internal/core"
	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/util"
)

// MockCode is the only code the mock provider accepts
const MockCode = "mock"

// MockProfile is the fixed identity the mock provider logs everyone in as.
type MockProfile struct {
	Username string
	FullName string
	Email    string
	Grants   string // space separated
}

var _ core.IdentityProvider = (*MockProvider)(nil)

// MockProvider logs every request in as one configured user without leaving
// the server. Only for development and tests.
type MockProvider struct {
	callbackURL string
	profile     MockProfile
	users       UserDirectory
}

// NewMockProvider creates a mock provider that sends browsers straight back to
// baseURL/callback.
func NewMockProvider(baseURL string, profile MockProfile, users UserDirectory) *MockProvider {
	return &MockProvider{
		callbackURL: strings.TrimRight(baseURL, "/") + "/callback",
		profile:     profile,
		users:       users,
	}
}

func (p *MockProvider) Name() string {
	return "mock"
}

// Redirect points back at /callback with the fixed code.
func (p *MockProvider) Redirect(ctx context.Context, req *models.LoginRequest) (string, error) {
	return util.AppendQuery(p.callbackURL, url.Values{
		"code":  {MockCode},
		"state": {req.ID},
	}), nil
}

func (p *MockProvider) Login(ctx context.Context, code string) (*models.User, error) {
	if code != MockCode {
		return nil, ErrInvalidCode
	}
	return p.users.UpsertExternalUser(ctx, &models.User{
		Username:   p.profile.Username,
		FullName:   p.profile.FullName,
		Email:      p.profile.Email,
		Grants:     models.ParseGrants(p.profile.Grants),
		Provider:   p.Name(),
		ExternalID: p.profile.Username,
	})
}

// Refresh accepts every user unchanged.
func (p *MockProvider) Refresh(ctx context.Context, user *models.User) (*models.User, error) {
	return user, nil
}
