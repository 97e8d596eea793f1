package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DetectionsTotal counts finished submissions by outcome:
	// matched, unmatched, invalid_image, no_face, uninitialized, persistence_error, error.
	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fw",
		Name:      "detections_total",
		Help:      "Total number of detection submissions by outcome",
	}, []string{"outcome"})

	FacesLocated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fw",
		Name:      "faces_located_total",
		Help:      "Total number of candidate face boxes found, by localizer pass",
	}, []string{"pass"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fw",
		Name:      "stage_duration_seconds",
		Help:      "Duration of detection pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	MatchScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fw",
		Name:      "match_score",
		Help:      "Best similarity score per detection",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fw",
		Name:      "notifications_total",
		Help:      "Notification delivery attempts by channel and status",
	}, []string{"channel", "status"})

	RedeliveryClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fw",
		Name:      "redelivery_claimed_total",
		Help:      "Detection events claimed by the notification redelivery sweep",
	})

	BackgroundQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fw",
		Name:      "background_queue_depth",
		Help:      "Number of pending background tasks",
	})

	BackgroundRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fw",
		Name:      "background_rejected_total",
		Help:      "Background tasks rejected because the queue was full or closed",
	}, []string{"task"})

	BackgroundPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fw",
		Name:      "background_panics_total",
		Help:      "Background tasks that panicked",
	}, []string{"task"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fw",
		Name:      "queue_depth",
		Help:      "Number of pending detection tasks in NATS",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fw",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fw",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})

	WSDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fw",
		Name:      "ws_dropped_clients_total",
		Help:      "WebSocket clients disconnected because their send buffer was full",
	})
)
