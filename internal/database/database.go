// Package database persists run history. An interface decouples the engine
// from Postgres so local runs and tests can use the no-op provider.
package database

import (
	"context"

	"github.com/xZoluGames/skinfetch/internal/engine"
	"github.com/xZoluGames/skinfetch/internal/progress"
)

// Provider records run summaries and progress snapshots.
type Provider interface {
	// SaveRun writes the final accounting for one run.
	SaveRun(ctx context.Context, summary engine.RunSummary) error

	// SaveSnapshot appends one progress snapshot to the run's history.
	SaveSnapshot(ctx context.Context, snap progress.Snapshot) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close()
}

// NoOpProvider discards everything. It keeps local runs and tests free of a
// database dependency.
type NoOpProvider struct{}

// SaveRun does nothing.
func (NoOpProvider) SaveRun(_ context.Context, _ engine.RunSummary) error { return nil }

// SaveSnapshot does nothing.
func (NoOpProvider) SaveSnapshot(_ context.Context, _ progress.Snapshot) error { return nil }

// Ping reports the provider as always reachable.
func (NoOpProvider) Ping(_ context.Context) error { return nil }

// Close does nothing.
func (NoOpProvider) Close() {}
