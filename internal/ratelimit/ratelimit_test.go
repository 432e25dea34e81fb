package ratelimit

import (
	"testing"
	"time"

	"github.com/patrickwarner/flagdesk/internal/observability"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTokenBucket_Allow(t *testing.T) {
	bucket := NewTokenBucket(5, 1)

	for i := 0; i < 5; i++ {
		if !bucket.Allow() {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}
	if bucket.Allow() {
		t.Error("Expected 6th request to be blocked")
	}

	hits, total := bucket.Stats()
	if hits != 1 {
		t.Errorf("Expected 1 hit, got %d", hits)
	}
	if total != 6 {
		t.Errorf("Expected 6 total requests, got %d", total)
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	bucket := newTokenBucket(2, 10, clock.now)

	bucket.Allow()
	bucket.Allow()
	if bucket.Allow() {
		t.Error("Expected request to be blocked")
	}

	clock.advance(200 * time.Millisecond)
	if !bucket.Allow() {
		t.Error("Expected request to be allowed after refill")
	}

	clock.advance(time.Hour)
	for i := 0; i < 2; i++ {
		if !bucket.Allow() {
			t.Fatalf("request %d after long idle should be allowed", i+1)
		}
	}
	if bucket.Allow() {
		t.Error("refill must not exceed capacity")
	}
}

func TestKeyedLimiter(t *testing.T) {
	metrics := &observability.MockMetricsRegistry{}
	l := NewKeyedLimiter("mutations", Config{Capacity: 1, RefillRate: 1, Enabled: true}, metrics)
	clock := &fakeClock{t: time.Unix(0, 0)}
	l.now = clock.now

	if !l.Allow("user:7") {
		t.Fatal("first request should pass")
	}
	if l.Allow("user:7") {
		t.Fatal("second request should be limited")
	}
	if !l.Allow("user:8") {
		t.Fatal("buckets are per key")
	}
	if got := metrics.Count("ratelimit", "mutations"); got != 1 {
		t.Fatalf("want 1 rate limit hit, got %d", got)
	}

	stats := l.Snapshot()
	if len(stats) != 2 || stats[0].Key != "user:7" || stats[0].Hits != 1 || stats[0].Total != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats[0].String() != "user:7: 1/2 hits (50.00%)" {
		t.Fatalf("unexpected string %q", stats[0].String())
	}
}

func TestKeyedLimiterDisabled(t *testing.T) {
	l := NewKeyedLimiter("mutations", Config{Capacity: 0, Enabled: false}, nil)
	for i := 0; i < 3; i++ {
		if !l.Allow("user:1") {
			t.Fatal("disabled limiter must allow everything")
		}
	}
	var nilLimiter *KeyedLimiter
	if !nilLimiter.Allow("x") {
		t.Fatal("nil limiter must allow")
	}
}
