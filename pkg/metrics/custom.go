package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HistoricalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mdviewer",
			Name:      "historical_requests_total",
			Help:      "Total historical queries by provider, schema and result kind.",
		},
		[]string{"provider", "schema", "result"},
	)

	HistoricalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mdviewer",
			Name:      "historical_duration_seconds",
			Help:      "Historical query latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms ~ 16s
		},
		[]string{"provider", "schema"},
	)

	HistoricalRecords = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mdviewer",
			Name:      "historical_records",
			Help:      "Records returned per historical query.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"provider", "schema"},
	)

	LiveStreamsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mdviewer",
			Name:      "live_streams_active",
			Help:      "Live streams currently producing.",
		},
		[]string{"provider"},
	)

	LiveMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mdviewer",
			Name:      "live_messages_total",
			Help:      "Live messages produced by type.",
		},
		[]string{"provider", "type"},
	)

	InvalidBarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mdviewer",
			Name:      "invalid_bars_total",
			Help:      "Upstream OHLCV bars dropped for violating low <= open,close <= high.",
		},
		[]string{"provider"},
	)

	CBRejectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mdviewer",
			Name:      "circuitbreaker_reject_total",
			Help:      "Total number of circuit breaker rejections.",
		},
		[]string{"name", "reason"},
	)

	CBState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mdviewer",
			Name:      "circuitbreaker_state",
			Help:      "Circuit breaker state (0/1).",
		},
		[]string{"name", "state"}, // state: closed/open/half_open
	)

	VendorWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mdviewer",
			Name:      "vendor_ratelimit_wait_seconds",
			Help:      "Time spent waiting for the outbound vendor limiter.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"endpoint"},
	)
)

var registerOnce sync.Once

// MustRegister 进程内只注册一次
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HistoricalRequestsTotal, HistoricalDuration, HistoricalRecords,
			LiveStreamsActive, LiveMessagesTotal, InvalidBarsTotal,
			CBRejectTotal, CBState, VendorWaitSeconds,
		)
	})
}

// ObserveHistorical result 取错误分类名，成功为 "ok"
func ObserveHistorical(provider, schema, result string, records int, dur time.Duration) {
	HistoricalRequestsTotal.WithLabelValues(provider, schema, result).Inc()
	HistoricalDuration.WithLabelValues(provider, schema).Observe(dur.Seconds())
	if result == "ok" {
		HistoricalRecords.WithLabelValues(provider, schema).Observe(float64(records))
	}
}

// SetBreakerState 只有当前状态为 1
func SetBreakerState(name, state string) {
	for _, s := range []string{"closed", "open", "half_open"} {
		v := 0.0
		if s == state {
			v = 1
		}
		CBState.WithLabelValues(name, s).Set(v)
	}
}
