package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of audit event
type EventType string

const (
	// Login handshake events
	EventLoginStarted       EventType = "LOGIN_STARTED"
	EventLoginCompleted     EventType = "LOGIN_COMPLETED"
	EventLoginFailed        EventType = "LOGIN_FAILED"
	EventLoginRequestsSwept EventType = "LOGIN_REQUESTS_SWEPT"

	// Token events
	EventRefreshTokenIssued  EventType = "REFRESH_TOKEN_ISSUED"
	EventRefreshTokenRotated EventType = "REFRESH_TOKEN_ROTATED"
	EventRefreshTokenRevoked EventType = "REFRESH_TOKEN_REVOKED"
	EventAccessTokenMinted   EventType = "ACCESS_TOKEN_MINTED"

	// Admin operations
	EventAppCreated         EventType = "APP_CREATED"
	EventAppKeysRotated     EventType = "APP_KEYS_ROTATED"
	EventAppSecretRotated   EventType = "APP_SECRET_ROTATED" //nolint:gosec // G101: event name, not a credential
	EventAppDeleted         EventType = "APP_DELETED"
	EventGroupCreated       EventType = "GROUP_CREATED"
	EventGroupDeleted       EventType = "GROUP_DELETED"
	EventGroupUpdated       EventType = "GROUP_UPDATED"
	EventGroupMemberAdded   EventType = "GROUP_MEMBER_ADDED"
	EventGroupMemberRemoved EventType = "GROUP_MEMBER_REMOVED"
	EventUserGrantChanged   EventType = "USER_GRANT_CHANGED"

	// Security events
	EventRateLimitExceeded EventType = "RATE_LIMIT_EXCEEDED"
)

// EventSeverity represents the severity level of an audit event
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "INFO"
	SeverityWarning  EventSeverity = "WARNING"
	SeverityError    EventSeverity = "ERROR"
	SeverityCritical EventSeverity = "CRITICAL"
)

// ResourceType represents the type of resource being operated on
type ResourceType string

const (
	ResourceUser          ResourceType = "USER"
	ResourceApp           ResourceType = "APP"
	ResourceGroup         ResourceType = "GROUP"
	ResourceRefreshRecord ResourceType = "REFRESH_RECORD"
	ResourceLoginRequest  ResourceType = "LOGIN_REQUEST"
)

// AuditDetails stores additional event-specific information as JSON
type AuditDetails map[string]any

// Value implements the driver.Valuer interface for database storage
func (a AuditDetails) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil //nolint:nilnil // nil driver.Value represents SQL NULL, which is valid here
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database retrieval
func (a *AuditDetails) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal AuditDetails value: %v", value)
	}

	result := make(AuditDetails)
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}

	*a = result
	return nil
}

// AuditLog represents an audit log entry
type AuditLog struct {
	ID string `gorm:"primaryKey;type:varchar(36)" json:"id"`

	// Event information
	EventType EventType     `gorm:"type:varchar(50);index;not null" json:"event_type"`
	EventTime time.Time     `gorm:"index;not null"                  json:"event_time"`
	Severity  EventSeverity `gorm:"type:varchar(20);not null"       json:"severity"`

	// Actor information
	ActorUserID   string `gorm:"type:varchar(36);index" json:"actor_user_id"`
	ActorUsername string `gorm:"type:varchar(100)"      json:"actor_username"`
	ActorIP       string `gorm:"type:varchar(45);index" json:"actor_ip"` // Support IPv6

	// Resource information
	ResourceType ResourceType `gorm:"type:varchar(50);index" json:"resource_type"`
	ResourceID   string       `gorm:"type:varchar(36);index" json:"resource_id"`
	ResourceName string       `gorm:"type:varchar(255)"      json:"resource_name"`

	// Operation details
	Action       string       `gorm:"type:varchar(255);not null" json:"action"`
	Details      AuditDetails `gorm:"type:json"                  json:"details"`
	Success      bool         `gorm:"index;not null"             json:"success"`
	ErrorMessage string       `gorm:"type:text"                  json:"error_message,omitempty"`

	// Request metadata
	UserAgent     string `gorm:"type:varchar(500)" json:"user_agent,omitempty"`
	RequestPath   string `gorm:"type:varchar(500)" json:"request_path,omitempty"`
	RequestMethod string `gorm:"type:varchar(10)"  json:"request_method,omitempty"`

	// Timestamps (no UpdatedAt - immutable logs)
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`
}

// TableName specifies the table name for GORM
func (AuditLog) TableName() string {
	return "audit_logs"
}
