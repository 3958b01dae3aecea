package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers writes to case graphs.
type Metrics struct {
	Commits      *prometheus.CounterVec
	DroppedEdges prometheus.Counter
	CommitSize   *prometheus.HistogramVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Commits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zahori_graph_commits_total",
			Help: "Graph write units by operation and outcome",
		}, []string{"op", "status"}),
		DroppedEdges: f.NewCounter(prometheus.CounterOpts{
			Name: "zahori_graph_dropped_edges_total",
			Help: "Proposed edges dropped because an endpoint did not resolve",
		}),
		CommitSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zahori_graph_commit_nodes",
			Help:    "Nodes written per graph write unit",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"op"}),
	}
}

// ObserveCommit records one write unit.
func (m *Metrics) ObserveCommit(op, status string, nodes int) {
	m.Commits.WithLabelValues(op, status).Inc()
	if status == "ok" {
		m.CommitSize.WithLabelValues(op).Observe(float64(nodes))
	}
}

func (m *Metrics) AddDroppedEdges(n int) {
	if n > 0 {
		m.DroppedEdges.Add(float64(n))
	}
}
