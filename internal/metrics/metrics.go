package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquire_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inquire_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	QuestionsLogged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inquire_questions_logged_total",
			Help: "Total questions logged",
		},
	)

	AnswersLogged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inquire_answers_logged_total",
			Help: "Total answers appended to questions",
		},
	)

	ResolutionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquire_resolution_failures_total",
			Help: "Messages that could not be logged",
		},
		[]string{"reason"}, // "malformed", "not_found", "room_unavailable", "internal"
	)

	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inquire_rooms_created_total",
			Help: "Total rooms created",
		},
	)

	Warnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquire_best_effort_warnings_total",
			Help: "Best-effort operations that failed and were skipped",
		},
		[]string{"op"},
	)

	DuplicateDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inquire_duplicate_deliveries_total",
			Help: "Webhook deliveries dropped as duplicates",
		},
	)

	ResyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquire_resync_runs_total",
			Help: "Scheduled room resync runs",
		},
		[]string{"result"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquire_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquire_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	DirectoryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inquire_directory_latency_seconds",
			Help:    "Directory API call latency",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"op"},
	)

	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inquire_store_latency_seconds",
			Help:    "Storage operation latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
		[]string{"op"},
	)
)

// ObserveStore records the time since start under op.
func ObserveStore(op string, start time.Time) {
	StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ObserveDirectory records the time since start under op.
func ObserveDirectory(op string, start time.Time) {
	DirectoryLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
