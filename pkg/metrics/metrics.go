package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_active_connections",
		Help: "Number of websocket connections currently registered",
	})

	EventsFannedOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_fanned_out_total",
		Help: "Events delivered to connected users, by event type",
	}, []string{"type"})

	DroppedSends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_dropped_sends_total",
		Help: "Events dropped because a connection queue was full",
	})

	CallLogWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_call_log_writes_total",
		Help: "Call log persistence attempts, by outcome",
	}, []string{"outcome"})

	EmailFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_email_fallbacks_total",
		Help: "Notifications delivered by email because the user was offline",
	})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "realtime_http_request_duration_seconds",
		Help:    "HTTP request latency by method, path and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
