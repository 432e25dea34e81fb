package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// so components never touch the global Prometheus collectors directly.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Flag lifecycle metrics
	IncrementFlagTransitions(action, outcome string)
	SetFlagBacklog(status string, count int)
	IncrementNotifications()
	IncrementPublishErrors(sink string)
	IncrementRateLimitHits(scope string)

	// REST client metrics
	IncrementClientRequests(operation, outcome string)
	RecordClientLatency(operation string, duration time.Duration)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Flag lifecycle metrics
func (r *PrometheusRegistry) IncrementFlagTransitions(action, outcome string) {
	FlagTransitions.WithLabelValues(action, outcome).Inc()
}

func (r *PrometheusRegistry) SetFlagBacklog(status string, count int) {
	FlagBacklog.WithLabelValues(status).Set(float64(count))
}

func (r *PrometheusRegistry) IncrementNotifications() {
	NotificationCount.Inc()
}

func (r *PrometheusRegistry) IncrementPublishErrors(sink string) {
	PublishErrors.WithLabelValues(sink).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(scope string) {
	RateLimitHits.WithLabelValues(scope).Inc()
}

// REST client metrics
func (r *PrometheusRegistry) IncrementClientRequests(operation, outcome string) {
	ClientRequests.WithLabelValues(operation, outcome).Inc()
}

func (r *PrometheusRegistry) RecordClientLatency(operation string, duration time.Duration) {
	ClientLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// NoOpRegistry implements MetricsRegistry with no-op methods. The CLI and MCP
// binaries use it since they expose no metrics endpoint.
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementFlagTransitions(action, outcome string)                      {}
func (r *NoOpRegistry) SetFlagBacklog(status string, count int)                              {}
func (r *NoOpRegistry) IncrementNotifications()                                              {}
func (r *NoOpRegistry) IncrementPublishErrors(sink string)                                   {}
func (r *NoOpRegistry) IncrementRateLimitHits(scope string)                                  {}
func (r *NoOpRegistry) IncrementClientRequests(operation, outcome string)                    {}
func (r *NoOpRegistry) RecordClientLatency(operation string, duration time.Duration)         {}
