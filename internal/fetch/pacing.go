package fetch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces the dispatches of a single worker. Each worker owns one Pacer:
// a token bucket enforces the profile's request delay, and on top of that a
// penalty delay proportional to the shared connection-error streak slows the
// whole fleet down while the remote side is struggling.
type Pacer struct {
	limiter *rate.Limiter
	client  *Client
	step    time.Duration
	max     time.Duration
}

// NewPacer builds a pacer. delay is the minimum gap between dispatches; step
// and max shape the penalty (step per recent connection error, capped at max).
// client may be nil, which disables the penalty.
func NewPacer(delay time.Duration, client *Client, step, max time.Duration) *Pacer {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		client:  client,
		step:    step,
		max:     max,
	}
}

// Wait blocks until the worker may dispatch its next attempt.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pace wait: %w", err)
	}
	penalty := p.penalty()
	if penalty <= 0 {
		return nil
	}
	timer := time.NewTimer(penalty)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Pacer) penalty() time.Duration {
	if p.client == nil || p.step <= 0 {
		return 0
	}
	streak := p.client.ConnErrors()
	if streak <= 0 {
		return 0
	}
	d := time.Duration(streak) * p.step
	if p.max > 0 && d > p.max {
		d = p.max
	}
	return d
}
