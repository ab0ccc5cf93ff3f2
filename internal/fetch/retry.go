package fetch

import (
	"context"
	"fmt"
	"time"
)

// Policy is an explicit retry budget. Both the never-give-up bulk loop and
// the fail-fast probe loop run through the same executor; only the policy
// value differs, so the two behaviors cannot drift apart.
type Policy struct {
	// MaxAttempts caps total attempts. Zero or less means retry forever.
	MaxAttempts int
	// BaseDelay scales linearly with the attempt number, up to attempt 10.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
}

// Unbounded retries forever. Appropriate when total extracted volume, not
// per-unit latency, is the success criterion.
func Unbounded(base, max time.Duration) Policy {
	return Policy{BaseDelay: base, MaxDelay: max}
}

// Bounded gives up after attempts tries, yielding an explicit empty result.
func Bounded(attempts int, base, max time.Duration) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: base, MaxDelay: max}
}

// Unlimited reports whether the policy never gives up.
func (p Policy) Unlimited() bool {
	return p.MaxAttempts <= 0
}

// Delay returns the backoff after the given failed attempt (counted from 1):
// min(base x min(attempt, 10), max).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt > 10 {
		attempt = 10
	}
	d := time.Duration(attempt) * p.BaseDelay
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Retry runs fn until it succeeds, the budget runs out, or the context ends.
// It returns the number of attempts made and the terminal error, if any.
func Retry(ctx context.Context, p Policy, fn func(attempt int) error) (int, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		lastErr = fn(attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if !p.Unlimited() && attempt >= p.MaxAttempts {
			return attempt, fmt.Errorf("gave up after %d attempts: %w", attempt, lastErr)
		}
		delay := p.Delay(attempt)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
}
