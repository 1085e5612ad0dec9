package routing

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus instruments updated on every
// recomputation. A nil *Metrics is safe to use — all observe methods
// no-op — so metrics stay optional for callers that don't register
// one (e.g. tests).
type Metrics struct {
	recomputeSeconds *prometheus.HistogramVec
	topologyVersion  prometheus.Counter
	linkFailures     prometheus.Counter
}

// NewMetrics registers the routing manager's instruments against reg
// and returns the handle used to update them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		recomputeSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tdmamesh_routing_recompute_seconds",
			Help:    "Wall time spent recomputing routes, labeled by phase (overall, dijkstra, mst).",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
		}, []string{"phase"}),
		topologyVersion: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tdmamesh_routing_topology_version",
			Help: "Number of topology changes that triggered a route recomputation.",
		}),
		linkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tdmamesh_link_failures_total",
			Help: "Number of connectivity-matrix changes detected by the routing manager.",
		}),
	}
	reg.MustRegister(m.recomputeSeconds, m.topologyVersion, m.linkFailures)
	return m
}

func (m *Metrics) observePhase(phase string, us uint64) {
	if m == nil {
		return
	}
	m.recomputeSeconds.WithLabelValues(phase).Observe(float64(us) / 1e6)
}

func (m *Metrics) incTopologyVersion() {
	if m == nil {
		return
	}
	m.topologyVersion.Inc()
}

func (m *Metrics) incLinkFailures() {
	if m == nil {
		return
	}
	m.linkFailures.Inc()
}
