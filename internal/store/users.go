package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/simonsobs/soauth/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// User operations
func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := s.first(&user, "username = ?", username); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.first(&user, "id = ?", id); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUsersByIDs returns the users with the given ids keyed by id.
func (s *Store) GetUsersByIDs(ids []string) (map[string]*models.User, error) {
	if len(ids) == 0 {
		return make(map[string]*models.User), nil
	}

	var users []models.User
	if err := s.db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}

	userMap := make(map[string]*models.User, len(users))
	for i := range users {
		userMap[users[i].ID] = &users[i]
	}
	return userMap, nil
}

// LockUser loads a user row with SELECT ... FOR UPDATE. Dialects without row
// locks (SQLite) drop the clause.
func (s *Store) LockUser(id string) (*models.User, error) {
	var user models.User
	err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetUserByExternalID finds a user by their external ID and provider
func (s *Store) GetUserByExternalID(externalID, provider string) (*models.User, error) {
	var user models.User
	if err := s.first(&user, "external_id = ? AND provider = ?", externalID, provider); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpsertExternalUser creates or updates a user from an identity provider.
// Profile fields on in are copied onto the stored row; grants are left alone.
func (s *Store) UpsertExternalUser(in *models.User) (*models.User, error) {
	var user models.User

	// Try to find existing user by external ID
	err := s.db.Where("external_id = ? AND provider = ?", in.ExternalID, in.Provider).
		First(&user).
		Error

	if err == nil {
		// User exists - check if username changed
		if user.Username != in.Username {
			var conflictingUser models.User
			conflictErr := s.db.Where("username = ? AND id != ?", in.Username, user.ID).
				First(&conflictingUser).
				Error

			if conflictErr == nil {
				return nil, ErrUsernameConflict
			}
			if !errors.Is(conflictErr, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("failed to check username: %w", conflictErr)
			}
		}

		// Only profile columns are written so concurrent grant changes survive
		user.Username = in.Username
		user.Email = in.Email
		user.FullName = in.FullName
		user.AvatarURL = in.AvatarURL
		columns := []string{"Username", "Email", "FullName", "AvatarURL", "UpdatedAt"}
		if in.GitHubToken != "" {
			user.GitHubToken = in.GitHubToken
			columns = append(columns, "GitHubToken")
		}
		if err := s.db.Model(&user).Select(columns).Updates(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to update external user: %w", err)
		}
		return &user, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query external user: %w", err)
	}

	// User doesn't exist - check if username is available
	var existingUser models.User
	err = s.db.Where("username = ?", in.Username).First(&existingUser).Error
	if err == nil {
		return nil, ErrUsernameConflict
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}

	user = models.User{
		ID:          uuid.New().String(),
		Username:    in.Username,
		FullName:    in.FullName,
		Email:       in.Email,
		AvatarURL:   in.AvatarURL,
		Grants:      models.NewGrantSet(),
		Provider:    in.Provider,
		ExternalID:  in.ExternalID,
		GitHubToken: in.GitHubToken,
	}
	if in.Grants != nil {
		user.Grants = in.Grants.Union(nil)
	}

	if err := s.db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create external user: %w", err)
	}

	return &user, nil
}

// CreateUser creates a new user
func (s *Store) CreateUser(user *models.User) error {
	if user.Grants == nil {
		user.Grants = models.NewGrantSet()
	}
	return s.db.Create(user).Error
}

// UpdateUser updates an existing user
func (s *Store) UpdateUser(user *models.User) error {
	return s.db.Save(user).Error
}

// UpdateUserGrants overwrites a user's direct grants.
func (s *Store) UpdateUserGrants(userID string, grants models.GrantSet) error {
	res := s.db.Model(&models.User{}).Where("id = ?", userID).Update("grants", grants)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// RecordAccessToken stamps the access-token bookkeeping columns of a user.
func (s *Store) RecordAccessToken(userID, digest string, at time.Time) error {
	res := s.db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"last_access_token":       digest,
			"last_access_time":        at,
			"number_of_access_tokens": gorm.Expr("number_of_access_tokens + ?", 1),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListUsers returns every user ordered by username.
func (s *Store) ListUsers() ([]models.User, error) {
	var users []models.User
	if err := s.db.Order("username ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// DeleteUser deletes a user by ID
func (s *Store) DeleteUser(id string) error {
	return s.db.Delete(&models.User{}, "id = ?", id).Error
}
