package verify

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricSet holds the verification counters. Published atomically so
// recording from verification goroutines never races registration.
type metricSet struct {
	cacheHitsTotal      prometheus.Counter
	cacheMissesTotal    prometheus.Counter
	cacheEvictionsTotal *prometheus.CounterVec
	storeQueriesTotal   prometheus.Counter
	verificationsTotal  *prometheus.CounterVec
}

var (
	metrics     atomic.Pointer[metricSet]
	metricsOnce sync.Once
)

// InitMetrics registers the verification metrics with the default registry.
// Call once at startup when the metrics listener is enabled; recording is a
// no-op until then, so library use and tests stay registration-free.
func InitMetrics() {
	metricsOnce.Do(func() {
		metrics.Store(&metricSet{
			cacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "renderauth_cache_hits_total",
				Help: "Total number of verifications served from the decision cache",
			}),

			cacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "renderauth_cache_misses_total",
				Help: "Total number of verifications that fell through to the backing store",
			}),

			cacheEvictionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "renderauth_cache_evictions_total",
					Help: "Total number of cache entries evicted",
				},
				[]string{"reason"},
			),

			storeQueriesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "renderauth_store_queries_total",
				Help: "Total number of credential lookups against the backing store",
			}),

			verificationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "renderauth_verifications_total",
					Help: "Total number of verification decisions by outcome",
				},
				[]string{"outcome"},
			),
		})
	})
}

func recordCacheHit() {
	if m := metrics.Load(); m != nil {
		m.cacheHitsTotal.Inc()
	}
}

func recordCacheMiss() {
	if m := metrics.Load(); m != nil {
		m.cacheMissesTotal.Inc()
	}
}

func recordEviction(reason string) {
	if m := metrics.Load(); m != nil {
		m.cacheEvictionsTotal.WithLabelValues(reason).Inc()
	}
}

func recordStoreQuery() {
	if m := metrics.Load(); m != nil {
		m.storeQueriesTotal.Inc()
	}
}

func recordVerification(outcome string) {
	if m := metrics.Load(); m != nil {
		m.verificationsTotal.WithLabelValues(outcome).Inc()
	}
}
