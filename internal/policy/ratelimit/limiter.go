// Package ratelimit keeps the harvester under listing API abuse
// thresholds: a token bucket paces individual requests and a window
// caps how many iterations run per rolling hour.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces requests to a single endpoint.
type Pacer struct {
	limiter *rate.Limiter
}

// PacerConfig holds pacer configuration.
type PacerConfig struct {
	// RequestsPerMinute of zero or less disables pacing.
	RequestsPerMinute float64
	Burst             int
}

// NewPacer creates a Pacer.
func NewPacer(cfg PacerConfig) *Pacer {
	r := rate.Limit(cfg.RequestsPerMinute / 60)
	if cfg.RequestsPerMinute <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(r, burst)}
}

// Wait blocks until the next request may be issued, respecting ctx.
// It returns how long the caller was held back.
func (p *Pacer) Wait(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return time.Since(start), fmt.Errorf("rate limit wait: %w", err)
	}
	return time.Since(start), nil
}
