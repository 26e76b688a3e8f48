package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/services"
	"github.com/simonsobs/soauth/internal/store"

	"github.com/gin-gonic/gin"
)

const (
	// queryValueTrue represents the string "true" used in query parameters
	queryValueTrue = "true"

	// maxExportRows caps a CSV export
	maxExportRows = 10000
)

// AuditHandler serves the audit trail to admins
type AuditHandler struct {
	auditService *services.AuditService
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(auditService *services.AuditService) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
	}
}

// parseAuditFilters reads the shared filter query parameters
func parseAuditFilters(c *gin.Context) store.AuditLogFilters {
	filters := store.AuditLogFilters{
		EventType:    models.EventType(c.Query("event_type")),
		ActorUserID:  c.Query("actor_user_id"),
		ResourceType: models.ResourceType(c.Query("resource_type")),
		ResourceID:   c.Query("resource_id"),
		Severity:     models.EventSeverity(c.Query("severity")),
		ActorIP:      c.Query("actor_ip"),
		Search:       c.Query("search"),
	}

	// Parse success filter (optional boolean)
	if successStr := c.Query("success"); successStr != "" {
		success := successStr == queryValueTrue
		filters.Success = &success
	}

	filters.StartTime = parseTimeQuery(c, "start_time")
	filters.EndTime = parseTimeQuery(c, "end_time")
	return filters
}

func parseTimeQuery(c *gin.Context, key string) time.Time {
	if raw := c.Query(key); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ListAuditLogs godoc
//
//	@Summary		List audit logs
//	@Description	Paginated audit trail with optional filters
//	@Tags			Audit
//	@Security		BearerAuth
//	@Produce		json
//	@Param			page			query		int		false	"Page number"
//	@Param			page_size		query		int		false	"Page size (max 100)"
//	@Param			event_type		query		string	false	"Event type"
//	@Param			severity		query		string	false	"Severity"
//	@Param			success			query		bool	false	"Only successful or failed events"
//	@Param			start_time		query		string	false	"RFC3339 lower bound"
//	@Param			end_time		query		string	false	"RFC3339 upper bound"
//	@Success		200				{object}	object{logs=[]models.AuditLog,pagination=store.PageInfo}
//	@Router			/api/admin/audit [get]
func (h *AuditHandler) ListAuditLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))

	logs, pagination, err := h.auditService.GetAuditLogs(
		store.NewPage(page, pageSize),
		parseAuditFilters(c),
	)
	if err != nil {
		respondInternalError(c, "Failed to retrieve audit logs", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":       logs,
		"pagination": pagination,
	})
}

// GetAuditLogStats returns event counts for a time range, the last 30 days by default
func (h *AuditHandler) GetAuditLogStats(c *gin.Context) {
	startTime := parseTimeQuery(c, "start_time")
	endTime := parseTimeQuery(c, "end_time")

	if startTime.IsZero() && endTime.IsZero() {
		endTime = time.Now().UTC()
		startTime = endTime.Add(-30 * 24 * time.Hour)
	}

	stats, err := h.auditService.GetAuditLogStats(startTime, endTime)
	if err != nil {
		respondInternalError(c, "Failed to retrieve audit log statistics", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":      stats,
		"start_time": startTime,
		"end_time":   endTime,
	})
}

// ExportAuditLogs exports matching audit logs as CSV
func (h *AuditHandler) ExportAuditLogs(c *gin.Context) {
	// The export is one oversized page, past the listing cap
	page := store.Page{Number: 1, Size: maxExportRows}

	logs, _, err := h.auditService.GetAuditLogs(page, parseAuditFilters(c))
	if err != nil {
		respondInternalError(c, "Failed to retrieve audit logs", err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf(
		"attachment; filename=audit_logs_%s.csv",
		time.Now().UTC().Format("2006-01-02"),
	))

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	if err := writer.Write([]string{
		"Event Time",
		"Event Type",
		"Severity",
		"Actor Username",
		"Actor IP",
		"Resource Type",
		"Resource ID",
		"Resource Name",
		"Action",
		"Success",
		"Error Message",
	}); err != nil {
		return
	}

	for _, entry := range logs {
		successStr := "Yes"
		if !entry.Success {
			successStr = "No"
		}

		if err := writer.Write([]string{
			entry.EventTime.Format(time.RFC3339),
			string(entry.EventType),
			string(entry.Severity),
			entry.ActorUsername,
			entry.ActorIP,
			string(entry.ResourceType),
			entry.ResourceID,
			entry.ResourceName,
			entry.Action,
			successStr,
			entry.ErrorMessage,
		}); err != nil {
			return
		}
	}
}
