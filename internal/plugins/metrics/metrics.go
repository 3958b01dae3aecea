package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts plugin executions.
type Metrics struct {
	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Executions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zahori_plugin_executions_total",
			Help: "Expansion plugin executions by outcome",
		}, []string{"plugin", "status"}),
		ExecutionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zahori_plugin_execution_duration_seconds",
			Help:    "Duration of expansion plugin executions",
			Buckets: prometheus.DefBuckets,
		}, []string{"plugin"}),
	}
}

// ObserveExecution records one plugin run.
func (m *Metrics) ObserveExecution(plugin, status string, start time.Time) {
	m.Executions.WithLabelValues(plugin, status).Inc()
	m.ExecutionDuration.WithLabelValues(plugin).Observe(time.Since(start).Seconds())
}
