package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "magbot/pkg/domain-errors"
)

var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics holds the Prometheus metrics shared by both registries and the
// HTTP layer. Every series carries a registry label.
type Metrics struct {
	TokensMinted       *prometheus.CounterVec
	OperationsRejected *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	PauseState         *prometheus.GaugeVec
	CacheLookups       *prometheus.CounterVec
	HTTPLatency        *prometheus.HistogramVec
	RateLimited        *prometheus.CounterVec
}

// New creates and registers all application metrics on reg. Tests pass a
// fresh prometheus.NewRegistry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TokensMinted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "magbot_tokens_minted_total",
			Help: "Total number of tokens minted, by registry",
		}, []string{"registry"}),
		OperationsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "magbot_operations_rejected_total",
			Help: "Total number of registry operations rejected, by registry, operation and error code",
		}, []string{"registry", "operation", "code"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "magbot_operation_duration_seconds",
			Help:    "Duration of registry operations",
			Buckets: durationBuckets,
		}, []string{"registry", "operation"}),
		PauseState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "magbot_collateral_paused",
			Help: "1 while a collateral registry instance is paused",
		}, []string{"instance"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "magbot_credential_cache_lookups_total",
			Help: "Credential binding cache lookups, by result (hit, miss, error, bypass)",
		}, []string{"result"}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "magbot_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status class",
			Buckets: durationBuckets,
		}, []string{"method", "route", "status"}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "magbot_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by endpoint class",
		}, []string{"class"}),
	}
}

// IncrementMinted records a successful mint.
func (m *Metrics) IncrementMinted(registry string) {
	m.TokensMinted.WithLabelValues(registry).Inc()
}

// IncrementRejected records a failed operation labelled by its error code.
func (m *Metrics) IncrementRejected(registry, operation string, err error) {
	m.OperationsRejected.WithLabelValues(registry, operation, string(dErrors.GetCode(err))).Inc()
}

// ObserveOperation records the duration of a registry operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(registry, operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(registry, operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetPaused(instance string, paused bool) {
	v := 0.0
	if paused {
		v = 1
	}
	m.PauseState.WithLabelValues(instance).Set(v)
}

func (m *Metrics) IncrementCacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, start time.Time) {
	m.HTTPLatency.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementRateLimited(class string) {
	m.RateLimited.WithLabelValues(class).Inc()
}
