package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	m := Init(true)
	require.NotNil(t, m)

	metrics, ok := m.(*Metrics)
	require.True(t, ok, "Init(true) should return *Metrics")
	assert.NotNil(t, metrics.LoginsTotal)
	assert.NotNil(t, metrics.TokensIssuedTotal)
	assert.NotNil(t, metrics.HTTPRequestsTotal)

	assert.Same(t, metrics, Init(true), "Init registers metrics only once")
}

func TestInitNoop(t *testing.T) {
	m := Init(false)
	_, ok := m.(*NoopMetrics)
	assert.True(t, ok, "Init(false) should return *NoopMetrics")

	// Every method is callable
	m.RecordLoginStarted("mock")
	m.RecordLogin("mock", true, time.Second)
	m.RecordCodeExchange("success")
	m.RecordTokenIssued("access", "primary", time.Millisecond)
	m.RecordTokenRefresh("success")
	m.RecordTokenRevoked("logout")
	m.RecordTokenValidation("valid", time.Millisecond)
	m.RecordLoginRequestsSwept(1, 2)
	m.SetActiveRefreshRecords(3)
	m.SetPendingLoginRequests(4)
	m.RecordDatabaseQueryError("count")
}

func TestRecordLogin(t *testing.T) {
	m := Init(true).(*Metrics)

	before := testutil.ToFloat64(m.LoginsTotal.WithLabelValues("github", resultFailure))
	m.RecordLogin("github", false, 200*time.Millisecond)
	after := testutil.ToFloat64(m.LoginsTotal.WithLabelValues("github", resultFailure))

	assert.Equal(t, before+1, after)
}

func TestRecordTokenIssued(t *testing.T) {
	m := Init(true).(*Metrics)

	before := testutil.ToFloat64(m.TokensIssuedTotal.WithLabelValues("refresh", "api_key"))
	m.RecordTokenIssued("refresh", "api_key", 5*time.Millisecond)
	after := testutil.ToFloat64(m.TokensIssuedTotal.WithLabelValues("refresh", "api_key"))

	assert.Equal(t, before+1, after)
}

func TestRecordLoginRequestsSwept(t *testing.T) {
	m := Init(true).(*Metrics)

	before := testutil.ToFloat64(m.LoginRequestsSwept.WithLabelValues("staled"))
	m.RecordLoginRequestsSwept(2, 3)
	after := testutil.ToFloat64(m.LoginRequestsSwept.WithLabelValues("staled"))

	assert.Equal(t, before+3, after)
}

func TestGauges(t *testing.T) {
	m := Init(true).(*Metrics)

	m.SetActiveRefreshRecords(42)
	m.SetPendingLoginRequests(7)

	assert.Equal(t, float64(42), testutil.ToFloat64(m.RefreshRecordsActive))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.LoginRequestsPending))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := Init(true).(*Metrics)

	r := gin.New()
	r.Use(HTTPMetricsMiddleware(m))
	r.GET("/login/:app_id", func(c *gin.Context) { c.Status(http.StatusFound) })

	before := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/login/:app_id", "302"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login/abc", nil))

	after := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/login/:app_id", "302"))
	assert.Equal(t, before+1, after)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		fullPath string
		expected string
	}{
		{"empty path", "", "unknown"},
		{"root path", "/", "/"},
		{"health check", "/health", "/health"},
		{"parameterized", "/login/:app_id", "/login/:app_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizePath(tt.fullPath))
		})
	}
}
