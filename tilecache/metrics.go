package tilecache

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the counters a Cache reports to.
type Metrics struct {
	Requests     prometheus.Counter
	LoadsStarted prometheus.Counter
	LoadsFailed  prometheus.Counter
	Tiles        prometheus.Gauge
}

// NewMetrics creates the cache metrics and registers them with reg, which
// may be nil to keep them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tilemesh",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Tile requests, including ones that were already cached or loading.",
		}),
		LoadsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tilemesh",
			Subsystem: "cache",
			Name:      "loads_started_total",
			Help:      "Tile loaders spawned.",
		}),
		LoadsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tilemesh",
			Subsystem: "cache",
			Name:      "loads_failed_total",
			Help:      "Tile loaders that finished without a tile.",
		}),
		Tiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tilemesh",
			Subsystem: "cache",
			Name:      "tiles",
			Help:      "Decoded tiles held by the cache.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.LoadsStarted, m.LoadsFailed, m.Tiles)
	}
	return m
}
