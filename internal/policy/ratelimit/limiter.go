// Package ratelimit spaces out captures against the same host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DelayObserver is told how long a capture waited for its host budget.
type DelayObserver interface {
	ObservePolitenessDelay(host string, delay time.Duration)
}

// Config holds rate limiter configuration.
type Config struct {
	// PerHostQPS is the sustained rate per host; <= 0 disables limiting.
	PerHostQPS float64
	// Burst is the bucket size per host, at least 1.
	Burst int
}

// Limiter keeps one token bucket per host and implements capture.Limiter.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	observer DelayObserver
}

// New creates a new Limiter. observer may be nil.
func New(cfg Config, observer DelayObserver) *Limiter {
	r := rate.Limit(cfg.PerHostQPS)
	if cfg.PerHostQPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
		observer: observer,
	}
}

// Enabled reports whether the limiter ever delays.
func (l *Limiter) Enabled() bool {
	return l.rate != rate.Inf
}

// Wait blocks until rawURL's host has budget or ctx ends. Hosts are keyed
// without port so http and https variants of one site share a bucket.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	if delay := time.Since(start); delay > time.Millisecond && l.observer != nil {
		l.observer.ObservePolitenessDelay(host, delay)
	}
	return nil
}
