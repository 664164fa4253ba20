package query

import "github.com/prometheus/client_golang/prometheus"

// metrics are the cache's Prometheus collectors. Keys are never used as
// labels: they carry user ids and free-text search terms.
type metrics struct {
	fetches       *prometheus.CounterVec
	hits          prometheus.Counter
	joins         prometheus.Counter
	invalidations prometheus.Counter
	evictions     prometheus.Counter
	pollers       prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "readrealm",
				Subsystem: "query",
				Name:      "fetches_total",
				Help:      "Completed fetches by outcome (success, error, discarded).",
			},
			[]string{"result"},
		),
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "readrealm",
			Subsystem: "query",
			Name:      "cache_hits_total",
			Help:      "Reads served from a fresh cache entry.",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "readrealm",
			Subsystem: "query",
			Name:      "dedup_joins_total",
			Help:      "Reads that joined a fetch already in flight.",
		}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "readrealm",
			Subsystem: "query",
			Name:      "invalidated_entries_total",
			Help:      "Cache entries marked stale by Invalidate.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "readrealm",
			Subsystem: "query",
			Name:      "evicted_entries_total",
			Help:      "Unobserved cache entries dropped after the GC time.",
		}),
		pollers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "readrealm",
			Subsystem: "query",
			Name:      "active_pollers",
			Help:      "Keys currently being re-fetched on a timer.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.fetches, m.hits, m.joins, m.invalidations, m.evictions, m.pollers)
	}
	return m
}
