package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "locator"

// Metrics holds the Prometheus collectors for the location service.
type Metrics struct {
	// Lookup metrics.
	LookupRequests   *prometheus.CounterVec   // labels: operation={forward,reverse,route}, outcome={success,empty,error}
	CacheLookups     *prometheus.CounterVec   // labels: operation, result={hit,miss,expired}
	UpstreamDuration *prometheus.HistogramVec // labels: operation
	CoalescedLookups *prometheus.CounterVec   // labels: operation
	CacheEntries     prometheus.Gauge

	// Side channel and device metrics.
	Notifications        *prometheus.CounterVec // labels: level
	NotificationsDropped prometheus.Counter
	DeviceFixes          *prometheus.CounterVec // labels: outcome={success,unsupported,unavailable}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.LookupRequests,
		m.CacheLookups,
		m.UpstreamDuration,
		m.CoalescedLookups,
		m.CacheEntries,
		m.Notifications,
		m.NotificationsDropped,
		m.DeviceFixes,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		LookupRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_requests_total",
			Help:      "Resolver lookups by operation and outcome.",
		}, []string{"operation", "outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by operation and result.",
		}, []string{"operation", "result"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Nominatim and OSRM request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		CoalescedLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coalesced_lookups_total",
			Help:      "Lookups that shared an in-flight upstream request.",
		}, []string{"operation"}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries held in the lookup cache, expired ones included.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "User-visible notifications emitted by level.",
		}, []string{"level"}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications discarded because the delivery queue was full or closed.",
		}),
		DeviceFixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_fixes_total",
			Help:      "Device location requests by outcome.",
		}, []string{"outcome"}),
	}
}
