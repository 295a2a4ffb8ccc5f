// Package observability holds the process-wide Prometheus collectors.
package observability

import (
	"context"
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refcat_loads_total",
			Help: "Reference catalog loads by region kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	loadDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refcat_load_duration_seconds",
			Help:    "Duration of reference catalog loads in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"kind"},
	)

	recordsReturned = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refcat_records_returned",
			Help:    "Records per successful load.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
		[]string{"kind"},
	)

	indexRowsScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refcat_index_rows_scanned_total",
			Help: "Rows read from each star index.",
		},
		[]string{"index"},
	)

	indexFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refcat_index_failures_total",
			Help: "Star index queries that failed, by reason.",
		},
		[]string{"index", "reason"},
	)

	blockCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refcat_block_cache_total",
			Help: "Block cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by result.",
		},
		[]string{"op", "result"},
	)

	redisOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Latency of Redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds,
		loadsTotal, loadDurationSeconds, recordsReturned,
		indexRowsScanned, indexFailures, blockCache,
		cacheOpTotal, redisOpDuration,
	}
}

// Init registers the collectors with reg. Registering twice with the same
// registry is a no-op.
func Init(reg prometheus.Registerer) {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveLoad records one load. outcome is "ok", "invalid" or "error".
func ObserveLoad(kind, outcome string, records int, durationSeconds float64) {
	loadsTotal.WithLabelValues(kind, outcome).Inc()
	loadDurationSeconds.WithLabelValues(kind).Observe(durationSeconds)
	if outcome == "ok" {
		recordsReturned.WithLabelValues(kind).Observe(float64(records))
	}
}

func AddRowsScanned(index string, n int) {
	if n > 0 {
		indexRowsScanned.WithLabelValues(index).Add(float64(n))
	}
}

func IncIndexFailure(index, reason string) {
	indexFailures.WithLabelValues(index, reason).Inc()
}

// ObserveBlockCache records a lookup on tier ("l1", "l2") with outcome
// ("hit", "miss", "error").
func ObserveBlockCache(tier, outcome string) {
	blockCache.WithLabelValues(tier, outcome).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		result = "timeout"
	default:
		result = "error"
	}
	cacheOpTotal.WithLabelValues(op, result).Inc()
	redisOpDuration.WithLabelValues(op).Observe(durationSeconds)
}
