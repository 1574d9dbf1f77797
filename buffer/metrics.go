package buffer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// poolMetrics counts what the pool does to its frames. Counters are not registered
// globally so that every pool instance, including the ones tests spin up, gets its
// own set; callers wire them to a registry through Collectors.
type poolMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	flushes   prometheus.Counter
}

func newPoolMetrics() *poolMetrics {
	return &poolMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buffer_pool_hits_total",
			Help: "Fetches served from an already resident frame.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buffer_pool_misses_total",
			Help: "Fetches that had to read the page from disk.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buffer_pool_evictions_total",
			Help: "Frames reclaimed through the replacer.",
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buffer_pool_flushes_total",
			Help: "Pages written back to disk, explicit or on eviction.",
		}),
	}
}

// Collectors returns the pool's counters so a caller can register them.
func (b *BufferPool) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		b.metrics.hits,
		b.metrics.misses,
		b.metrics.evictions,
		b.metrics.flushes,
	}
}
