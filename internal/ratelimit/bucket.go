// Package ratelimit implements a per-host token bucket used to bound
// outbound enrichment traffic.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a set of token buckets keyed by host. Each bucket refills
// continuously at a fixed rate from elapsed wall time rather than on a
// ticker, so a burst after idle time is served immediately up to the
// burst cap. The limiter degrades open: a non-positive rate disables
// limiting entirely, it never becomes a second failure mode on top of
// a misconfiguration.
type Limiter struct {
	mu      sync.Mutex
	rate    float64 // tokens per second
	burst   float64
	now     func() time.Time
	buckets map[string]*bucket
}

// New creates a Limiter refilling rate tokens per second per host with
// the given burst capacity.
func New(rate float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		rate:    rate,
		burst:   float64(burst),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether one request to host may proceed now, consuming
// a token if so.
func (l *Limiter) Allow(host string) bool {
	if l.rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[host]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[host] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * l.rate
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.last = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
