package store

import (
	"time"

	"github.com/simonsobs/soauth/internal/models"
)

// Login request operations
func (s *Store) CreateLoginRequest(req *models.LoginRequest) error {
	return s.db.Create(req).Error
}

func (s *Store) GetLoginRequest(id string) (*models.LoginRequest, error) {
	var req models.LoginRequest
	if err := s.first(&req, "id = ?", id); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Store) GetLoginRequestByCode(code string) (*models.LoginRequest, error) {
	var req models.LoginRequest
	if err := s.first(&req, "secret_code = ?", code); err != nil {
		return nil, err
	}
	return &req, nil
}

// SetLoginRequestUser records the authenticated user on a pending request.
func (s *Store) SetLoginRequestUser(id, userID string) error {
	res := s.db.Model(&models.LoginRequest{}).
		Where("id = ? AND completed_at IS NULL", id).
		Update("user_id", userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLoginAlreadyCompleted
	}
	return nil
}

// CompleteLoginRequest stamps completed_at on a pending, non-stale request.
func (s *Store) CompleteLoginRequest(id, userID string, at time.Time) error {
	res := s.db.Model(&models.LoginRequest{}).
		Where("id = ? AND completed_at IS NULL AND stale = ?", id, false).
		Updates(map[string]any{
			"user_id":      userID,
			"completed_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLoginAlreadyCompleted
	}
	return nil
}

// ConsumeLoginCode marks the request's secret code as exchanged. A code that
// was already used yields ErrCodeAlreadyUsed.
func (s *Store) ConsumeLoginCode(id string, at time.Time) error {
	res := s.db.Model(&models.LoginRequest{}).
		Where("id = ? AND code_used_at IS NULL", id).
		Update("code_used_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCodeAlreadyUsed
	}
	return nil
}

// DeleteLoginRequestsBefore removes requests initiated before cutoff.
func (s *Store) DeleteLoginRequestsBefore(cutoff time.Time) (int64, error) {
	res := s.db.Where("initiated_at < ?", cutoff).Delete(&models.LoginRequest{})
	return res.RowsAffected, res.Error
}

// MarkLoginRequestsStale flags pending requests initiated before cutoff.
func (s *Store) MarkLoginRequestsStale(cutoff time.Time) (int64, error) {
	res := s.db.Model(&models.LoginRequest{}).
		Where("initiated_at < ? AND completed_at IS NULL AND stale = ?", cutoff, false).
		Update("stale", true)
	return res.RowsAffected, res.Error
}

// CountPendingLoginRequests counts requests that can still complete.
func (s *Store) CountPendingLoginRequests(since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.LoginRequest{}).
		Where("initiated_at >= ? AND completed_at IS NULL AND stale = ?", since, false).
		Count(&count).Error
	return count, err
}
