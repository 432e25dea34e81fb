package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagdesk_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flagdesk_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// lifecycle actions applied to flags, labelled by action and outcome
	FlagTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagdesk_flag_transitions_total",
			Help: "Total flag lifecycle actions by outcome",
		},
		[]string{"action", "outcome"},
	)

	// flags currently held in each status
	FlagBacklog = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flagdesk_flag_backlog",
			Help: "Number of flags per status at last listing",
		},
		[]string{"status"},
	)

	// student notifications stored after a resolution
	NotificationCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flagdesk_notifications_total",
			Help: "Total student notifications recorded",
		},
	)

	// failures publishing lifecycle updates or analytics events
	PublishErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagdesk_publish_errors_total",
			Help: "Total failures publishing side-channel updates",
		},
		[]string{"sink"},
	)

	// mutations rejected by the per-user rate limiter
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagdesk_rate_limit_hits_total",
			Help: "Total requests rejected by rate limiting",
		},
		[]string{"scope"},
	)

	// outgoing REST client calls labelled by operation and outcome
	ClientRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagdesk_client_requests_total",
			Help: "Total flag repository client requests",
		},
		[]string{"operation", "outcome"},
	)

	// latency of outgoing REST client calls
	ClientLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flagdesk_client_request_duration_seconds",
			Help:    "Duration of flag repository client requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		FlagTransitions,
		FlagBacklog,
		NotificationCount,
		PublishErrors,
		RateLimitHits,
		ClientRequests,
		ClientLatency,
	)
}
