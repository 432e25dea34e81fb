package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patrickwarner/flagdesk/internal/models"
)

var _ AnalyticsService = (*MockAnalytics)(nil)

// MockAnalytics keeps events in memory for tests.
type MockAnalytics struct {
	mu     sync.Mutex
	Events []FlagEvent
	// Err, when set, is returned from RecordFlagEvent.
	Err error
}

// NewMockAnalytics creates a new mock analytics instance
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordFlagEvent appends ev to Events.
func (m *MockAnalytics) RecordFlagEvent(ctx context.Context, ev FlagEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	m.Events = append(m.Events, ev)
	return nil
}

// ActionCounts aggregates the recorded events the same way the ClickHouse query does.
func (m *MockAnalytics) ActionCounts(ctx context.Context, since time.Time) ([]models.ActionCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[[2]string]uint64{}
	for _, ev := range m.Events {
		if ev.Timestamp.Before(since) {
			continue
		}
		counts[[2]string{ev.Action, ev.Outcome}]++
	}
	out := make([]models.ActionCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, models.ActionCount{Action: k[0], Outcome: k[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Action == out[j].Action {
			return out[i].Outcome < out[j].Outcome
		}
		return out[i].Action < out[j].Action
	})
	return out, nil
}

// Recorded returns a copy of the events seen so far.
func (m *MockAnalytics) Recorded() []FlagEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FlagEvent(nil), m.Events...)
}
