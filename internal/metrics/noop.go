package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder
// All methods are empty and do nothing, providing zero overhead when metrics are disabled
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

// Login handshake - noop implementations
func (n *NoopMetrics) RecordLoginStarted(provider string)                                {}
func (n *NoopMetrics) RecordLogin(provider string, success bool, duration time.Duration) {}
func (n *NoopMetrics) RecordCodeExchange(result string)                                  {}
func (n *NoopMetrics) RecordExternalAPICall(provider string, duration time.Duration)     {}

// Token Operations - noop implementations
func (n *NoopMetrics) RecordTokenIssued(tokenType, flow string, generationTime time.Duration) {}
func (n *NoopMetrics) RecordTokenRefresh(result string)                                       {}
func (n *NoopMetrics) RecordTokenRevoked(reason string)                                       {}
func (n *NoopMetrics) RecordTokenValidation(result string, duration time.Duration)            {}

// Maintenance - noop implementations
func (n *NoopMetrics) RecordLoginRequestsSwept(deleted, staled int64) {}

// Gauge Setters - noop implementations
func (n *NoopMetrics) SetActiveRefreshRecords(count int) {}
func (n *NoopMetrics) SetPendingLoginRequests(count int) {}

// Database Operations - noop implementations
func (n *NoopMetrics) RecordDatabaseQueryError(operation string) {}
