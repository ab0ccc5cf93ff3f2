package progress

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xZoluGames/skinfetch/internal/engine"
)

// Config controls the milestone schedule and sink behavior.
//   - FirstMilestones: every one of the first N completions emits (default 5).
//   - EveryNth: after that, every Nth completion emits (default 25).
//   - PenaltyWeight: consecutive-error weight in the final pool score (default 0.1).
//   - SinkTimeout: per-sink timeout while emitting (default 10s).
type Config struct {
	RunID           string
	TotalUnits      int
	FirstMilestones int
	EveryNth        int
	PenaltyWeight   float64
	SinkTimeout     time.Duration
}

const (
	defaultFirstMilestones = 5
	defaultEveryNth        = 25
	defaultPenaltyWeight   = 0.1
	defaultSinkTimeout     = 10 * time.Second
)

// Tracker aggregates unit completions into run counters and pushes snapshots
// to its sinks. It is safe for concurrent use by many workers; emission
// happens on the observing worker's goroutine and is bounded by SinkTimeout.
type Tracker struct {
	cfg    Config
	clock  engine.Clock
	logger *zap.Logger
	sinks  []Sink

	startedAt time.Time
	completed atomic.Int64
	succeeded atomic.Int64
	records   atomic.Int64
	requests  atomic.Int64
	// consecutive counts failed completions; each success decrements it
	// rather than resetting, so an isolated win inside a bad stretch does
	// not mask the trend.
	consecutive atomic.Int64
}

// NewTracker builds a Tracker and stamps the session start time.
func NewTracker(cfg Config, clock engine.Clock, logger *zap.Logger, sinks ...Sink) *Tracker {
	if cfg.FirstMilestones <= 0 {
		cfg.FirstMilestones = defaultFirstMilestones
	}
	if cfg.EveryNth <= 0 {
		cfg.EveryNth = defaultEveryNth
	}
	if cfg.PenaltyWeight <= 0 {
		cfg.PenaltyWeight = defaultPenaltyWeight
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
		sinks:     append([]Sink(nil), sinks...),
		startedAt: clock.Now(),
	}
}

// Observe records one completed unit and emits a snapshot when the completion
// count lands on a milestone.
func (t *Tracker) Observe(res engine.Result) {
	t.requests.Add(int64(res.Attempts))
	if res.Success {
		t.succeeded.Add(1)
		t.records.Add(int64(len(res.Records)))
		t.easeConsecutive()
	} else {
		t.consecutive.Add(1)
	}
	n := t.completed.Add(1)
	if t.isMilestone(int(n)) {
		t.emit(t.snapshot(StageMilestone))
	}
}

func (t *Tracker) easeConsecutive() {
	for {
		n := t.consecutive.Load()
		if n <= 0 {
			return
		}
		if t.consecutive.CompareAndSwap(n, n-1) {
			return
		}
	}
}

func (t *Tracker) isMilestone(n int) bool {
	if n <= t.cfg.FirstMilestones {
		return true
	}
	if n%t.cfg.EveryNth == 0 {
		return true
	}
	return n == t.cfg.TotalUnits
}

// Snapshot returns the current state of the run.
func (t *Tracker) Snapshot() Snapshot {
	return t.snapshot(StageMilestone)
}

func (t *Tracker) snapshot(stage Stage) Snapshot {
	now := t.clock.Now()
	completed := int(t.completed.Load())
	succeeded := int(t.succeeded.Load())
	elapsed := now.Sub(t.startedAt)

	snap := Snapshot{
		RunID:             t.cfg.RunID,
		Stage:             stage,
		Timestamp:         now,
		TotalUnits:        t.cfg.TotalUnits,
		Completed:         completed,
		Succeeded:         succeeded,
		Failed:            completed - succeeded,
		Records:           int(t.records.Load()),
		Requests:          int(t.requests.Load()),
		ConsecutiveErrors: t.consecutive.Load(),
		Elapsed:           elapsed,
	}
	if t.cfg.TotalUnits > 0 {
		snap.CompletionPct = float64(completed) / float64(t.cfg.TotalUnits) * 100
	}
	if completed > 0 {
		snap.SuccessRate = float64(succeeded) / float64(completed)
	}
	if minutes := elapsed.Minutes(); minutes > 0 && completed > 0 {
		snap.UnitsPerMin = float64(completed) / minutes
		remaining := t.cfg.TotalUnits - completed
		if remaining > 0 {
			snap.ETA = time.Duration(float64(remaining) / snap.UnitsPerMin * float64(time.Minute))
		}
	}
	return snap
}

// Finish emits the final snapshot with the ranked pool report and returns the
// run summary. Merge counts are left zero for the caller to fill after the
// merge step.
func (t *Tracker) Finish(pools []engine.PoolHealth) engine.RunSummary {
	finishedAt := t.clock.Now()
	scores := ScorePools(pools, t.cfg.PenaltyWeight)

	snap := t.snapshot(StageFinal)
	snap.Timestamp = finishedAt
	snap.PoolScores = scores
	if len(scores) > 0 {
		snap.BestRegion = scores[0].Region
	}
	t.emit(snap)

	return engine.RunSummary{
		RunID:       t.cfg.RunID,
		StartedAt:   t.startedAt,
		FinishedAt:  finishedAt,
		TotalUnits:  t.cfg.TotalUnits,
		Completed:   snap.Completed,
		Succeeded:   snap.Succeeded,
		Records:     snap.Records,
		SuccessRate: snap.SuccessRate,
		UnitsPerMin: snap.UnitsPerMin,
		Duration:    finishedAt.Sub(t.startedAt),
		BestRegion:  snap.BestRegion,
		PoolScores:  scores,
	}
}

// Close closes all sinks.
func (t *Tracker) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range t.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			t.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
	return nil
}

func (t *Tracker) emit(snap Snapshot) {
	for _, sink := range t.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.SinkTimeout)
		if err := sink.Consume(ctx, snap); err != nil {
			t.logger.Warn("progress sink consume failed",
				zap.String("stage", string(snap.Stage)),
				zap.Error(err))
		}
		cancel()
	}
}
