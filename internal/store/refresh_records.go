package store

import (
	"time"

	"github.com/simonsobs/soauth/internal/models"

	"gorm.io/gorm"
)

// RefreshRecordFilter narrows ListActiveRefreshRecords. Empty fields match everything.
type RefreshRecordFilter struct {
	UserID string
	AppID  string
	APIKey *bool
}

// Refresh record operations
func (s *Store) CreateRefreshRecord(record *models.RefreshRecord) error {
	return s.db.Create(record).Error
}

func (s *Store) GetRefreshRecord(id string) (*models.RefreshRecord, error) {
	var record models.RefreshRecord
	if err := s.first(&record, "id = ?", id); err != nil {
		return nil, err
	}
	return &record, nil
}

// RevokeActiveRefreshRecords revokes every non-revoked record in the
// (user, app, api_key) scope and returns how many were revoked.
func (s *Store) RevokeActiveRefreshRecords(
	userID, appID string,
	apiKey bool,
	at time.Time,
) (int64, error) {
	res := s.db.Model(&models.RefreshRecord{}).
		Where("user_id = ? AND app_id = ? AND api_key = ? AND revoked = ?", userID, appID, apiKey, false).
		Updates(map[string]any{
			"revoked":      true,
			"last_used_at": at,
		})
	return res.RowsAffected, res.Error
}

// ConsumeRefreshRecord revokes a record as part of rotation. Only one caller
// can win: a record that is already revoked yields ErrAlreadyRevoked.
func (s *Store) ConsumeRefreshRecord(id string, at time.Time) error {
	res := s.db.Model(&models.RefreshRecord{}).
		Where("id = ? AND revoked = ?", id, false).
		Updates(map[string]any{
			"revoked":      true,
			"used":         gorm.Expr("used + ?", 1),
			"last_used_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrAlreadyRevoked
	}
	return nil
}

// MarkRefreshRecordUsed increments the use counter of a record.
func (s *Store) MarkRefreshRecordUsed(id string, at time.Time) error {
	res := s.db.Model(&models.RefreshRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"used":         gorm.Expr("used + ?", 1),
			"last_used_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// RevokeRefreshRecord sets revoked on a single record. Already revoked and
// missing records are not an error.
func (s *Store) RevokeRefreshRecord(id string, at time.Time) error {
	return s.db.Model(&models.RefreshRecord{}).
		Where("id = ? AND revoked = ?", id, false).
		Updates(map[string]any{
			"revoked":      true,
			"last_used_at": at,
		}).Error
}

// RevokeRefreshRecordsForApp revokes every record issued for appID.
func (s *Store) RevokeRefreshRecordsForApp(appID string, at time.Time) (int64, error) {
	res := s.db.Model(&models.RefreshRecord{}).
		Where("app_id = ? AND revoked = ?", appID, false).
		Updates(map[string]any{
			"revoked":      true,
			"last_used_at": at,
		})
	return res.RowsAffected, res.Error
}

// ListActiveRefreshRecords returns non-revoked, unexpired records, newest first.
func (s *Store) ListActiveRefreshRecords(
	filter RefreshRecordFilter,
	now time.Time,
) ([]models.RefreshRecord, error) {
	query := s.db.Where("revoked = ? AND expires_at > ?", false, now)
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.AppID != "" {
		query = query.Where("app_id = ?", filter.AppID)
	}
	if filter.APIKey != nil {
		query = query.Where("api_key = ?", *filter.APIKey)
	}

	var records []models.RefreshRecord
	if err := query.Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CountActiveRefreshRecords counts non-revoked, unexpired records.
func (s *Store) CountActiveRefreshRecords(now time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.RefreshRecord{}).
		Where("revoked = ? AND expires_at > ?", false, now).
		Count(&count).Error
	return count, err
}
