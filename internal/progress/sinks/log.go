package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/xZoluGames/skinfetch/internal/progress"
)

// LogSink emits structured log lines for each snapshot. It is the sink that
// carries the human-readable progress output of a run.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the snapshot using structured fields. Final snapshots include
// the ranked pool report.
func (s *LogSink) Consume(_ context.Context, snap progress.Snapshot) error {
	fields := []zap.Field{
		zap.String("run_id", snap.RunID),
		zap.Int("completed", snap.Completed),
		zap.Int("total", snap.TotalUnits),
		zap.Float64("completion_pct", snap.CompletionPct),
		zap.Float64("success_rate", snap.SuccessRate),
		zap.Float64("units_per_minute", snap.UnitsPerMin),
		zap.Duration("eta", snap.ETA),
		zap.Int64("consecutive_errors", snap.ConsecutiveErrors),
		zap.Int("records", snap.Records),
	}
	if snap.Stage != progress.StageFinal {
		s.logger.Info("fetch progress", fields...)
		return nil
	}

	fields = append(fields,
		zap.Duration("elapsed", snap.Elapsed),
		zap.String("best_region", snap.BestRegion),
	)
	s.logger.Info("fetch run finished", fields...)
	for i, score := range snap.PoolScores {
		s.logger.Info("pool ranking",
			zap.Int("rank", i+1),
			zap.String("pool_id", score.PoolID),
			zap.String("region", score.Region),
			zap.Float64("success_rate", score.SuccessRate),
			zap.Int64("consecutive_errors", score.ConsecutiveErrors),
			zap.Float64("score", score.Score))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
