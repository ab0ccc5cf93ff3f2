package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xZoluGames/skinfetch/internal/progress"
)

// SnapshotRecorder persists snapshots. The database provider satisfies it.
type SnapshotRecorder interface {
	SaveSnapshot(ctx context.Context, snap progress.Snapshot) error
}

// StoreSink forwards snapshots to a run-history repository, giving each run a
// queryable progress timeline.
type StoreSink struct {
	repo   SnapshotRecorder
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo SnapshotRecorder, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume persists the snapshot. It respects ctx deadlines and returns
// repository errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, snap progress.Snapshot) error {
	if s == nil || s.repo == nil {
		return nil
	}
	if err := s.repo.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
