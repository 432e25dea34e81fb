package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry records counter increments for assertions in tests.
type MockMetricsRegistry struct {
	mu          sync.Mutex
	Requests    map[string]int
	Transitions map[string]int
	Client      map[string]int
	Publish     map[string]int
	Limited     map[string]int
	Notified    int
}

func (m *MockMetricsRegistry) bump(dst *map[string]int, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if *dst == nil {
		*dst = make(map[string]int)
	}
	(*dst)[key]++
}

// Count returns how often key was recorded for kind. Request keys are
// "METHOD template status"; the others are "action/outcome".
func (m *MockMetricsRegistry) Count(kind, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case "request":
		return m.Requests[key]
	case "transition":
		return m.Transitions[key]
	case "client":
		return m.Client[key]
	case "publish":
		return m.Publish[key]
	case "ratelimit":
		return m.Limited[key]
	}
	return 0
}

func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) SetFlagBacklog(status string, count int)                              {}
func (m *MockMetricsRegistry) RecordClientLatency(operation string, duration time.Duration)         {}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.bump(&m.Requests, method+" "+endpoint+" "+status)
}

func (m *MockMetricsRegistry) IncrementFlagTransitions(action, outcome string) {
	m.bump(&m.Transitions, action+"/"+outcome)
}

func (m *MockMetricsRegistry) IncrementNotifications() {
	m.mu.Lock()
	m.Notified++
	m.mu.Unlock()
}

func (m *MockMetricsRegistry) IncrementPublishErrors(sink string) {
	m.bump(&m.Publish, sink)
}

func (m *MockMetricsRegistry) IncrementClientRequests(operation, outcome string) {
	m.bump(&m.Client, operation+"/"+outcome)
}

func (m *MockMetricsRegistry) IncrementRateLimitHits(scope string) {
	m.bump(&m.Limited, scope)
}
