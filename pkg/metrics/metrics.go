package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch outcomes per notification trigger
	DispatchResultCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_result_count",
			Help: "Total number of dispatch attempts by outcome",
		},
		[]string{"result"}, // sent, already_sent, no_recipients, gateway_failure, error
	)

	// Audience resolution latency (seconds)
	ResolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audience_resolve_duration_seconds",
			Help:    "Audience resolution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"source"}, // directory, cache
	)

	// Push gateway call latency (milliseconds)
	GatewayCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_latency_ms",
			Help:    "Push gateway call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"status"},
	)

	// Recipients delivered per successful dispatch
	DispatchRecipientCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_recipient_count",
			Help:    "Number of recipients per successful dispatch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1 to ~16k
		},
	)

	// Read receipt writes
	ReadReceiptCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "read_receipt_count",
			Help: "Total number of read receipt writes",
		},
		[]string{"outcome"}, // recorded, duplicate
	)

	// Resolver cache effectiveness
	ResolverCacheCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_cache_count",
			Help: "Resolver cache lookups by outcome",
		},
		[]string{"outcome"}, // hit, miss, error
	)

	// Slow query counter
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of slow database queries",
		},
		[]string{"query"},
	)
)

// RecordDispatchResult increments the dispatch outcome counter.
func RecordDispatchResult(result string) {
	DispatchResultCount.WithLabelValues(result).Inc()
}

// RecordResolveDuration records how long audience resolution took.
func RecordResolveDuration(source string, d time.Duration) {
	ResolveDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordGatewayLatency records a push gateway round trip.
func RecordGatewayLatency(status string, d time.Duration) {
	GatewayCallLatency.WithLabelValues(status).Observe(float64(d.Milliseconds()))
}

// IncrementSlowQuery counts a query that exceeded the slow threshold.
func IncrementSlowQuery(query string, d time.Duration) {
	SlowQueryCount.WithLabelValues(query).Inc()
}
