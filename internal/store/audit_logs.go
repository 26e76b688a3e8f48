package store

import (
	"time"

	"github.com/simonsobs/soauth/internal/models"

	"gorm.io/gorm"
)

// Audit log operations
func (s *Store) CreateAuditLog(entry *models.AuditLog) error {
	return s.db.Create(entry).Error
}

// CreateAuditLogBatch inserts entries in chunks of 100.
func (s *Store) CreateAuditLogBatch(entries []*models.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.CreateInBatches(entries, 100).Error
}

func applyAuditFilters(query *gorm.DB, filters AuditLogFilters) *gorm.DB {
	if filters.EventType != "" {
		query = query.Where("event_type = ?", filters.EventType)
	}
	if filters.ActorUserID != "" {
		query = query.Where("actor_user_id = ?", filters.ActorUserID)
	}
	if filters.ResourceType != "" {
		query = query.Where("resource_type = ?", filters.ResourceType)
	}
	if filters.ResourceID != "" {
		query = query.Where("resource_id = ?", filters.ResourceID)
	}
	if filters.Severity != "" {
		query = query.Where("severity = ?", filters.Severity)
	}
	if filters.Success != nil {
		query = query.Where("success = ?", *filters.Success)
	}
	if !filters.StartTime.IsZero() {
		query = query.Where("event_time >= ?", filters.StartTime)
	}
	if !filters.EndTime.IsZero() {
		query = query.Where("event_time <= ?", filters.EndTime)
	}
	if filters.ActorIP != "" {
		query = query.Where("actor_ip = ?", filters.ActorIP)
	}
	if filters.Search != "" {
		like := "%" + filters.Search + "%"
		query = query.Where(
			"action LIKE ? OR resource_name LIKE ? OR actor_username LIKE ?",
			like, like, like,
		)
	}
	return query
}

// GetAuditLogsPaginated returns one page of audit logs, newest first.
func (s *Store) GetAuditLogsPaginated(
	page Page,
	filters AuditLogFilters,
) ([]models.AuditLog, PageInfo, error) {
	var total int64
	if err := applyAuditFilters(s.db.Model(&models.AuditLog{}), filters).
		Count(&total).Error; err != nil {
		return nil, PageInfo{}, err
	}

	var logs []models.AuditLog
	if err := applyAuditFilters(s.db.Model(&models.AuditLog{}), filters).
		Order("event_time DESC").
		Offset(page.Offset()).
		Limit(page.Size).
		Find(&logs).Error; err != nil {
		return nil, PageInfo{}, err
	}

	return logs, page.Info(total), nil
}

// DeleteOldAuditLogs removes entries created before cutoff.
func (s *Store) DeleteOldAuditLogs(cutoff time.Time) (int64, error) {
	res := s.db.Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	return res.RowsAffected, res.Error
}

// GetAuditLogStats aggregates audit logs between startTime and endTime.
func (s *Store) GetAuditLogStats(startTime, endTime time.Time) (AuditLogStats, error) {
	stats := AuditLogStats{
		EventsByType:     make(map[models.EventType]int64),
		EventsBySeverity: make(map[models.EventSeverity]int64),
	}

	base := func() *gorm.DB {
		return s.db.Model(&models.AuditLog{}).
			Where("event_time >= ? AND event_time <= ?", startTime, endTime)
	}

	if err := base().Count(&stats.TotalEvents).Error; err != nil {
		return stats, err
	}
	if err := base().Where("success = ?", true).Count(&stats.SuccessCount).Error; err != nil {
		return stats, err
	}
	stats.FailureCount = stats.TotalEvents - stats.SuccessCount

	var byType []struct {
		EventType models.EventType
		Count     int64
	}
	if err := base().Select("event_type, COUNT(*) AS count").
		Group("event_type").
		Scan(&byType).Error; err != nil {
		return stats, err
	}
	for _, row := range byType {
		stats.EventsByType[row.EventType] = row.Count
	}

	var bySeverity []struct {
		Severity models.EventSeverity
		Count    int64
	}
	if err := base().Select("severity, COUNT(*) AS count").
		Group("severity").
		Scan(&bySeverity).Error; err != nil {
		return stats, err
	}
	for _, row := range bySeverity {
		stats.EventsBySeverity[row.Severity] = row.Count
	}

	return stats, nil
}
