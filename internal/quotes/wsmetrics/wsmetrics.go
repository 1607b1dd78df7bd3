package wsmetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Conns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mdviewer",
		Name:      "ws_conns",
		Help:      "Active live websocket sessions",
	})
	ConnOpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mdviewer",
		Name:      "ws_conn_open_total",
		Help:      "Total live websocket sessions opened",
	})
	ConnCloseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mdviewer",
		Name:      "ws_conn_close_total",
		Help:      "Total live websocket sessions closed, partitioned by close code and reason",
	}, []string{"code", "reason"})

	SubscribeRejectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mdviewer",
		Name:      "ws_subscribe_reject_total",
		Help:      "Live subscriptions rejected before streaming",
	}, []string{"kind"})
	ClientMsgsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mdviewer",
		Name:      "ws_client_msgs_total",
		Help:      "Inbound client text frames",
	}, []string{"type"})

	MsgsOutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mdviewer",
		Name:      "ws_msgs_out_total",
		Help:      "Total live frames sent out",
	}, []string{"type"})
	BytesOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mdviewer",
		Name:      "ws_bytes_out_total",
		Help:      "Total websocket bytes sent out",
	})
	WriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mdviewer",
		Name:      "ws_write_errors_total",
		Help:      "Total websocket write errors",
	})

	PingSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mdviewer",
		Name:      "ws_ping_sent_total",
		Help:      "Total ping sent",
	})
	PingErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mdviewer",
		Name:      "ws_ping_errors_total",
		Help:      "Total ping send errors",
	})
	PongRecvTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mdviewer",
		Name:      "ws_pong_recv_total",
		Help:      "Total pong received",
	})
	PongTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mdviewer",
		Name:      "ws_pong_timeout_total",
		Help:      "Total pong timeouts",
	})

	WriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mdviewer",
		Name:      "ws_write_duration_seconds",
		Help:      "Duration of a single websocket frame write",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms -> ~4s
	})
	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mdviewer",
		Name:      "ws_session_duration_seconds",
		Help:      "Lifetime of live websocket sessions",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10), // 1s -> ~3d
	})
)

func OnOpen() {
	Conns.Inc()
	ConnOpenTotal.Inc()
}

func OnClose(code int, reason string, lifetime time.Duration) {
	Conns.Dec()
	ConnCloseTotal.WithLabelValues(strconv.Itoa(code), reason).Inc()
	SessionDuration.Observe(lifetime.Seconds())
}

func OnReject(kind string) { SubscribeRejectTotal.WithLabelValues(kind).Inc() }

func ObserveWrite(msgType string, bytes int, dur time.Duration, err error) {
	WriteDuration.Observe(dur.Seconds())
	if err != nil {
		WriteErrorsTotal.Inc()
		return
	}
	MsgsOutTotal.WithLabelValues(msgType).Inc()
	BytesOutTotal.Add(float64(bytes))
}
