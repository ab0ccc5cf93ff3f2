// Package queue publishes run-completion notices. The abstraction keeps the
// engine independent of a specific broker; local runs use the memory or
// no-op provider.
package queue

import (
	"context"
	"time"

	"github.com/xZoluGames/skinfetch/internal/engine"
)

// Notice is the payload published after a run completes. Downstream
// consumers get the headline numbers without querying the run history.
type Notice struct {
	RunID        string    `json:"run_id"`
	Profile      string    `json:"profile"`
	FinishedAt   time.Time `json:"finished_at"`
	TotalUnits   int       `json:"total_units"`
	Succeeded    int       `json:"succeeded"`
	Records      int       `json:"records"`
	MergeNew     int       `json:"merge_new"`
	MergeUpdated int       `json:"merge_updated"`
	BestRegion   string    `json:"best_region,omitempty"`
}

// FromSummary builds the notice for one finished run.
func FromSummary(summary engine.RunSummary) Notice {
	return Notice{
		RunID:        summary.RunID,
		Profile:      summary.Profile,
		FinishedAt:   summary.FinishedAt,
		TotalUnits:   summary.TotalUnits,
		Succeeded:    summary.Succeeded,
		Records:      summary.Records,
		MergeNew:     summary.MergeNew,
		MergeUpdated: summary.MergeUpdated,
		BestRegion:   summary.BestRegion,
	}
}

// Provider publishes run notices.
type Provider interface {
	// Publish sends one notice to the configured topic.
	Publish(ctx context.Context, notice Notice) error

	// Close cleans up client connections and resources.
	Close() error
}

// NoOpProvider discards notices. It is useful for running the engine without
// a real broker.
type NoOpProvider struct{}

// Publish does nothing.
func (NoOpProvider) Publish(_ context.Context, _ Notice) error { return nil }

// Close does nothing.
func (NoOpProvider) Close() error { return nil }
