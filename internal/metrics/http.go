package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// HTTPMetricsMiddleware creates a Gin middleware that records HTTP metrics
func HTTPMetricsMiddleware(m Recorder) gin.HandlerFunc {
	metrics, ok := m.(*Metrics)
	if !ok {
		// NoopMetrics or an unknown implementation
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		// Skip metrics endpoint to avoid self-recording
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()

		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		c.Next()

		duration := time.Since(start).Seconds()
		method := c.Request.Method
		path := normalizePath(c.FullPath()) // Use route pattern, not actual path
		status := strconv.Itoa(c.Writer.Status())

		metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// normalizePath returns the route pattern (e.g., "/login/:app_id"), or
// "unknown" for unmatched routes so raw ids never become label values.
func normalizePath(fullPath string) string {
	if fullPath == "" {
		return "unknown"
	}
	return fullPath
}

func successLabel(success bool) string {
	if success {
		return resultSuccess
	}
	return resultFailure
}

// RecordLoginStarted records a new login handshake
func (m *Metrics) RecordLoginStarted(provider string) {
	m.LoginsStartedTotal.WithLabelValues(provider).Inc()
	m.LoginRequestsPending.Inc()
}

// RecordLogin records the outcome of a provider login
func (m *Metrics) RecordLogin(provider string, success bool, duration time.Duration) {
	m.LoginsTotal.WithLabelValues(provider, successLabel(success)).Inc()
	m.LoginDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordCodeExchange records a /code exchange result
func (m *Metrics) RecordCodeExchange(result string) {
	m.CodeExchangesTotal.WithLabelValues(result).Inc()
	if result == resultSuccess {
		m.LoginRequestsPending.Dec()
	}
}

// RecordExternalAPICall records external API call duration
func (m *Metrics) RecordExternalAPICall(provider string, duration time.Duration) {
	m.ExternalAPIDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordTokenIssued records token issuance
func (m *Metrics) RecordTokenIssued(tokenType, flow string, generationTime time.Duration) {
	m.TokensIssuedTotal.WithLabelValues(tokenType, flow).Inc()
	m.TokenGenerationSeconds.WithLabelValues(tokenType).Observe(generationTime.Seconds())
}

// RecordTokenRefresh records a refresh token exchange result
func (m *Metrics) RecordTokenRefresh(result string) {
	m.TokenRefreshTotal.WithLabelValues(result).Inc()
}

// RecordTokenRevoked records refresh record revocation
func (m *Metrics) RecordTokenRevoked(reason string) {
	m.TokensRevokedTotal.WithLabelValues(reason).Inc()
}

// RecordTokenValidation records bearer token validation
func (m *Metrics) RecordTokenValidation(result string, duration time.Duration) {
	m.TokenValidationTotal.WithLabelValues(result).Inc()
	m.TokenValidationDuration.Observe(duration.Seconds())
}

// RecordLoginRequestsSwept records one sweeper pass
func (m *Metrics) RecordLoginRequestsSwept(deleted, staled int64) {
	m.LoginRequestsSwept.WithLabelValues("deleted").Add(float64(deleted))
	m.LoginRequestsSwept.WithLabelValues("staled").Add(float64(staled))
}

// SetActiveRefreshRecords sets the current count of active refresh records (for periodic updates)
func (m *Metrics) SetActiveRefreshRecords(count int) {
	m.RefreshRecordsActive.Set(float64(count))
}

// SetPendingLoginRequests sets the current count of pending login requests (for periodic updates)
func (m *Metrics) SetPendingLoginRequests(count int) {
	m.LoginRequestsPending.Set(float64(count))
}

// RecordDatabaseQueryError records a database query error during metric collection
func (m *Metrics) RecordDatabaseQueryError(operation string) {
	m.DatabaseQueryErrorsTotal.WithLabelValues(operation).Inc()
}

// String formats the metrics for logging
func (m *Metrics) String() string {
	return "Metrics{Logins: enabled, Tokens: enabled, HTTP: enabled}"
}
