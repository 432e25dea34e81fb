package ratelimit

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/patrickwarner/flagdesk/internal/observability"
)

// Config holds the limiter settings.
type Config struct {
	Capacity   int  // burst allowance
	RefillRate int  // tokens per second
	Enabled    bool
}

// KeyedLimiter keeps one bucket per key, created on first use. The API keys
// buckets by the calling user.
type KeyedLimiter struct {
	buckets map[string]*TokenBucket
	mu      sync.RWMutex
	config  Config
	scope   string
	metrics observability.MetricsRegistry
	now     func() time.Time
}

// NewKeyedLimiter creates a limiter whose rejections are counted under scope.
func NewKeyedLimiter(scope string, config Config, metrics observability.MetricsRegistry) *KeyedLimiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &KeyedLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		scope:   scope,
		metrics: metrics,
		now:     time.Now,
	}
}

// Allow reports whether a request for key may proceed. It always returns true
// when the limiter is disabled.
func (l *KeyedLimiter) Allow(key string) bool {
	if l == nil || !l.config.Enabled {
		return true
	}

	l.mu.RLock()
	bucket, ok := l.buckets[key]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		bucket, ok = l.buckets[key]
		if !ok {
			bucket = newTokenBucket(l.config.Capacity, l.config.RefillRate, l.now)
			l.buckets[key] = bucket
		}
		l.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		l.metrics.IncrementRateLimitHits(l.scope)
	}
	return allowed
}

// Stats contains rate limiting counters for a single key.
type Stats struct {
	Key     string  `json:"key"`
	Hits    int64   `json:"hits"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hitRate"`
}

func (s Stats) String() string {
	return fmt.Sprintf("%s: %d/%d hits (%.2f%%)", s.Key, s.Hits, s.Total, s.HitRate*100)
}

// Snapshot returns the counters of every known key, sorted by key.
func (l *KeyedLimiter) Snapshot() []Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Stats, 0, len(l.buckets))
	for key, bucket := range l.buckets {
		hits, total := bucket.Stats()
		rate := 0.0
		if total > 0 {
			rate = float64(hits) / float64(total)
		}
		out = append(out, Stats{Key: key, Hits: hits, Total: total, HitRate: rate})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
