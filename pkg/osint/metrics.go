package osint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine-level prometheus metrics, labeled per source where useful.
// Registered on the default registry; the supervisor exposes them when
// --metrics-addr is set.
var (
	metricQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trustlens",
		Subsystem: "osint",
		Name:      "queries_total",
		Help:      "Source queries by outcome status.",
	}, []string{"source", "status"})

	metricCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trustlens",
		Subsystem: "osint",
		Name:      "cache_hits_total",
		Help:      "Cache hits per source.",
	}, []string{"source"})

	metricBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trustlens",
		Subsystem: "osint",
		Name:      "breaker_trips_total",
		Help:      "Circuit breaker open transitions per source.",
	}, []string{"source"})

	metricFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trustlens",
		Subsystem: "osint",
		Name:      "category_fallbacks_total",
		Help:      "Same-category fallback attempts after a failed primary source.",
	})
)
