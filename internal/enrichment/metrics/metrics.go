package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for provider calls and lookups.
type Metrics struct {
	ProviderCalls        *prometheus.CounterVec
	ProviderCallDuration *prometheus.HistogramVec
	BreakerOpened        *prometheus.CounterVec
	Lookups              *prometheus.CounterVec
	LookupDuration       *prometheus.HistogramVec
}

// New creates a Metrics instance registered with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers metrics with reg. Tests pass a fresh registry to
// avoid duplicate registration panics.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zahori_provider_calls_total",
			Help: "Provider adapter calls by outcome",
		}, []string{"provider", "status", "category"}),
		ProviderCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zahori_provider_call_duration_seconds",
			Help:    "Duration of provider adapter calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		BreakerOpened: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zahori_provider_breaker_opened_total",
			Help: "Times a provider circuit breaker opened",
		}, []string{"provider"}),
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zahori_enrich_total",
			Help: "Enrichment lookups by identifier kind and cache result",
		}, []string{"kind", "cache"}),
		LookupDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zahori_enrich_duration_seconds",
			Help:    "End-to-end duration of enrichment lookups",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"kind"}),
	}
}

// ObserveProviderCall records one adapter call.
func (m *Metrics) ObserveProviderCall(provider, status, category string, d time.Duration) {
	m.ProviderCalls.WithLabelValues(provider, status, category).Inc()
	m.ProviderCallDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// IncrementBreakerOpened records a breaker transition to open.
func (m *Metrics) IncrementBreakerOpened(provider string) {
	m.BreakerOpened.WithLabelValues(provider).Inc()
}

// ObserveLookup records one enrichment lookup.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveLookup(kind string, cacheHit bool, start time.Time) {
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	m.Lookups.WithLabelValues(kind, cache).Inc()
	m.LookupDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
