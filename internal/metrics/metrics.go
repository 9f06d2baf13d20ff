package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extornos_transitions_total",
			Help: "Committed extorno state transitions by action",
		},
		[]string{"action"},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extornos_notifications_total",
			Help: "Extorno notifications by template and result (sent, skipped, failed)",
		},
		[]string{"template", "result"},
	)

	AttachmentCleanupFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "extornos_attachment_cleanup_failures_total",
			Help: "Attachment deletions that failed after a record was removed",
		},
	)

	TokenRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "extornos_token_rejections_total",
			Help: "Confirmation attempts with an unknown, used or invalidated token",
		},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

// Register registers all collectors on reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		Transitions,
		Notifications,
		AttachmentCleanupFailures,
		TokenRejections,
		HTTPRequests,
		HTTPDuration,
	)
}
