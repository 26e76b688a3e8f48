package core

import "time"

// Recorder defines the interface for recording application metrics.
// Implementations include Metrics (Prometheus-based) and NoopMetrics (no-op).
type Recorder interface {
	// Login handshake
	RecordLoginStarted(provider string)
	RecordLogin(provider string, success bool, duration time.Duration)
	RecordCodeExchange(result string)
	RecordExternalAPICall(provider string, duration time.Duration)

	// Token Operations
	RecordTokenIssued(tokenType, flow string, generationTime time.Duration)
	RecordTokenRefresh(result string)
	RecordTokenRevoked(reason string)
	RecordTokenValidation(result string, duration time.Duration)

	// Maintenance
	RecordLoginRequestsSwept(deleted, staled int64)

	// Gauge Setters (for periodic updates)
	SetActiveRefreshRecords(count int)
	SetPendingLoginRequests(count int)

	// Database Operations
	RecordDatabaseQueryError(operation string)
}

// MetricsStore defines the DB operations needed by the metrics CacheWrapper.
type MetricsStore interface {
	CountActiveRefreshRecords(now time.Time) (int64, error)
	CountPendingLoginRequests(since time.Time) (int64, error)
}
