// Package sizing converts host CPU/memory/environment into a bounded worker
// count and a timing-parameter bundle, parameterized by a named fetch profile.
package sizing

import "time"

// Profile is one named bundle of sizing, timing and retry constants. The
// constants are configuration, not a derived formula: bulk favors throughput
// over heavy batched page fetches, probe favors fast per-item answers.
type Profile struct {
	Name         string
	Multiplier   float64
	MemDivisorGB float64
	MemFactorCap float64
	MinWorkers   int
	MaxWorkers   int
	Timeout      time.Duration
	RequestDelay time.Duration
	RetryBase    time.Duration
	RetryMax     time.Duration
	// MaxAttempts of zero selects the unbounded retry policy.
	MaxAttempts  int
	BatchSize    int
	ConnsPerHost int
}

// Unbounded reports whether the profile retries forever.
func (p Profile) Unbounded() bool {
	return p.MaxAttempts <= 0
}
