package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campuslink_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campuslink_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Chat engine metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campuslink_ws_connections_active",
			Help: "Currently open authenticated connections",
		},
	)

	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campuslink_ws_connections_total",
			Help: "Total accepted connections",
		},
	)

	HandshakeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campuslink_ws_handshake_failures_total",
			Help: "Total failed connection handshakes",
		},
		[]string{"reason"}, // "timeout", "bad_frame", "unauthenticated"
	)

	MessagesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campuslink_messages_ingested_total",
			Help: "Total messages accepted and persisted",
		},
	)

	IngestRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campuslink_ingest_rejected_total",
			Help: "Total rejected message submissions",
		},
		[]string{"reason"},
	)

	FanoutDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campuslink_fanout_delivered_total",
			Help: "Total message deliveries enqueued to live connections",
		},
	)

	FanoutDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campuslink_fanout_dropped_total",
			Help: "Total deliveries dropped due to recipient backpressure",
		},
	)

	CatchupReads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campuslink_catchup_reads_total",
			Help: "Total history catch-up reads",
		},
	)

	// Infrastructure metrics
	AppendLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campuslink_history_append_latency_seconds",
			Help:    "History store append latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .25},
		},
	)
)
