package metrics

import (
	"sync"

	"github.com/simonsobs/soauth/internal/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the metrics interface the rest of the application depends on.
type Recorder = core.Recorder

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Login Handshake Metrics
	LoginsStartedTotal     *prometheus.CounterVec
	LoginsTotal            *prometheus.CounterVec
	LoginDuration          *prometheus.HistogramVec
	CodeExchangesTotal     *prometheus.CounterVec
	ExternalAPIDuration    *prometheus.HistogramVec
	LoginRequestsSwept     *prometheus.CounterVec
	LoginRequestsPending   prometheus.Gauge
	RefreshRecordsActive   prometheus.Gauge
	TokensIssuedTotal      *prometheus.CounterVec
	TokenGenerationSeconds *prometheus.HistogramVec

	// Token Metrics
	TokenRefreshTotal       *prometheus.CounterVec
	TokensRevokedTotal      *prometheus.CounterVec
	TokenValidationTotal    *prometheus.CounterVec
	TokenValidationDuration prometheus.Histogram

	// HTTP Request Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Database Query Metrics
	DatabaseQueryErrorsTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag
// If enabled=true, returns Prometheus-based Metrics
// If enabled=false, returns NoopMetrics (zero overhead)
// Uses sync.Once to ensure Prometheus metrics are only registered once
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

// initMetrics creates and registers all Prometheus metrics
func initMetrics() *Metrics {
	return &Metrics{
		LoginsStartedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soauth_logins_started_total",
				Help: "Total number of login handshakes started",
			},
			[]string{"provider"},
		),
		LoginsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soauth_logins_total",
				Help: "Total number of provider logins",
			},
			[]string{"provider", "result"}, // success, failure
		),
		LoginDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soauth_login_duration_seconds",
				Help:    "Time spent in the provider login call",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		CodeExchangesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soauth_code_exchanges_total",
				Help: "Total number of login code exchanges",
			},
			[]string{"result"}, // success, stale, redirect_invalid, unauthorized
		),
		ExternalAPIDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soauth_external_api_duration_seconds",
				Help:    "Latency of calls to the identity provider API",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		LoginRequestsSwept: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soauth_login_requests_swept_total",
				Help: "Login requests removed or marked stale by the sweeper",
			},
			[]string{"action"}, // deleted, staled
		),
		LoginRequestsPending: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "soauth_login_requests_pending",
				Help: "Current number of login requests awaiting completion",
			},
		),
		RefreshRecordsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "soauth_refresh_records_active",
				Help: "Current number of non-revoked, unexpired refresh records",
			},
		),
		TokensIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soauth_tokens_issued_total",
				Help: "Total number of tokens issued",
			},
			[]string{"token_type", "flow"}, // access|refresh, primary|secondary|api_key
		),
		TokenGenerationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soauth_token_generation_duration_seconds",
				Help:    "Time taken to sign and persist a token",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"token_type"},
		),
		TokenRefreshTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soauth_token_refresh_total",
				Help: "Total number of refresh token exchanges",
			},
			[]string{"result"}, // success, expired, invalid, unauthorized
		),
		TokensRevokedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soauth_tokens_revoked_total",
				Help: "Total number of refresh records revoked",
			},
			[]string{"reason"}, // logout, user_revoke, singleton, key_rotation
		),
		TokenValidationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soauth_token_validation_total",
				Help: "Total number of bearer token validations",
			},
			[]string{"result"}, // valid, invalid, expired, cached
		),
		TokenValidationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "soauth_token_validation_duration_seconds",
				Help:    "Bearer token validation latency",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
			},
		),
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),
		DatabaseQueryErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_query_errors_total",
				Help: "Total number of database query errors during metric collection",
			},
			[]string{"operation"},
		),
	}
}
