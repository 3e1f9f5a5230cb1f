// ABOUTME: Per-provider rate limiting for outbound API requests
// ABOUTME: Token bucket limits with backoff recording for 429 responses
package providers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration for a provider.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// defaultRateLimits stays well below each provider's published limits so
// a sync run never consumes an account's whole API budget.
var defaultRateLimits = map[string]RateLimitConfig{
	"gmail":      {RequestsPerSecond: 2.0, BurstSize: 5},
	"hubspot":    {RequestsPerSecond: 8.0, BurstSize: 10},
	"pipedrive":  {RequestsPerSecond: 5.0, BurstSize: 10},
	"salesforce": {RequestsPerSecond: 8.0, BurstSize: 10},
	"zoho":       {RequestsPerSecond: 4.0, BurstSize: 8},
	"folk":       {RequestsPerSecond: 4.0, BurstSize: 8},
}

// RateLimiter provides rate limiting for one provider's API requests.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// NewRateLimiter creates a limiter for the named provider.
func NewRateLimiter(provider string) *RateLimiter {
	cfg, ok := defaultRateLimits[provider]
	if !ok {
		cfg = RateLimitConfig{RequestsPerSecond: 5.0, BurstSize: 10}
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
	}
}

// Wait blocks until a request can be made without exceeding the limit,
// respecting any backoff recorded from a previous 429.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if time.Now().Before(retryAt) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(retryAt)):
		}
	}

	return r.limiter.Wait(ctx)
}

// RecordRateLimitError records a 429 and sets a backoff period.
func (r *RateLimiter) RecordRateLimitError(retryAfterSeconds int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if retryAfterSeconds <= 0 {
		retryAfterSeconds = 60
	}

	r.retryAt = time.Now().Add(time.Duration(retryAfterSeconds) * time.Second)
}
