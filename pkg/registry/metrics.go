package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the registry's Prometheus instruments. A nil *metrics is
// valid and records nothing, so instrumentation stays optional.
type metrics struct {
	upserts    *prometheus.CounterVec
	edgeCount  prometheus.Counter
	lookups    *prometheus.CounterVec
	cleanup    prometheus.Counter
	migrations prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		upserts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codex",
			Subsystem: "registry",
			Name:      "node_upserts_total",
			Help:      "Node upserts by storage tier.",
		}, []string{"tier"}),
		edgeCount: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "codex",
			Subsystem: "registry",
			Name:      "edge_upserts_total",
			Help:      "Edge upserts into the adjacency index.",
		}),
		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codex",
			Subsystem: "registry",
			Name:      "lookups_total",
			Help:      "Direct node lookups by result.",
		}, []string{"result"}),
		cleanup: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "codex",
			Subsystem: "registry",
			Name:      "cleanup_purged_total",
			Help:      "Nodes physically removed by expiry and gas retention sweeps.",
		}),
		migrations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "codex",
			Subsystem: "registry",
			Name:      "tier_migrations_total",
			Help:      "Water to Ice promotions.",
		}),
	}
}

func (m *metrics) upsert(tier string) {
	if m != nil {
		m.upserts.WithLabelValues(tier).Inc()
	}
}

func (m *metrics) edgeUpsert() {
	if m != nil {
		m.edgeCount.Inc()
	}
}

func (m *metrics) lookup(result string) {
	if m != nil {
		m.lookups.WithLabelValues(result).Inc()
	}
}

func (m *metrics) purged(n int) {
	if m != nil {
		m.cleanup.Add(float64(n))
	}
}

func (m *metrics) migration() {
	if m != nil {
		m.migrations.Inc()
	}
}
