package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facewatch",
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed by the engine loop",
	})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facewatch",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected",
	})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facewatch",
		Name:      "decisions_total",
		Help:      "Total identity decisions by outcome",
	}, []string{"outcome"}) // known / unknown

	FeedbackReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facewatch",
		Name:      "feedback_total",
		Help:      "Total feedback events by result",
	}, []string{"result"}) // correct / wrong / not_found

	GlobalThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facewatch",
		Name:      "global_threshold",
		Help:      "Current adaptive global similarity threshold",
	})

	ActiveTracks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facewatch",
		Name:      "active_tracks",
		Help:      "Number of currently live face tracks",
	})

	PendingPredictions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facewatch",
		Name:      "pending_predictions",
		Help:      "Number of predictions awaiting feedback",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facewatch",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facewatch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facewatch",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
