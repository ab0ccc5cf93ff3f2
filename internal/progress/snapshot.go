package progress

import (
	"sort"
	"time"

	"github.com/xZoluGames/skinfetch/internal/engine"
)

// Stage denotes why a snapshot was emitted.
type Stage string

// Supported snapshot stages.
const (
	StageMilestone Stage = "MILESTONE"
	StageFinal     Stage = "FINAL"
)

// Snapshot is one point-in-time view of a run. Milestone snapshots carry the
// counters and derived rates; the final snapshot adds the ranked pool report.
type Snapshot struct {
	RunID     string    `json:"run_id"`
	Stage     Stage     `json:"stage"`
	Timestamp time.Time `json:"timestamp"`

	TotalUnits        int   `json:"total_units"`
	Completed         int   `json:"completed"`
	Succeeded         int   `json:"succeeded"`
	Failed            int   `json:"failed"`
	Records           int   `json:"records"`
	Requests          int   `json:"requests"`
	ConsecutiveErrors int64 `json:"consecutive_errors"`

	CompletionPct float64       `json:"completion_pct"`
	SuccessRate   float64       `json:"success_rate"`
	UnitsPerMin   float64       `json:"units_per_minute"`
	ETA           time.Duration `json:"eta_ns"`
	Elapsed       time.Duration `json:"elapsed_ns"`

	PoolScores []engine.PoolScore `json:"pool_scores,omitempty"`
	BestRegion string             `json:"best_region,omitempty"`
}

// ScorePools ranks pools by `successRate - consecutiveErrors x penaltyWeight`,
// best first. A pool that served no traffic scores zero success rate.
func ScorePools(pools []engine.PoolHealth, penaltyWeight float64) []engine.PoolScore {
	scores := make([]engine.PoolScore, 0, len(pools))
	for _, p := range pools {
		total := p.SuccessCount + p.ErrorCount
		rate := 0.0
		if total > 0 {
			rate = float64(p.SuccessCount) / float64(total)
		}
		scores = append(scores, engine.PoolScore{
			PoolID:            p.ID,
			Region:            p.Region,
			SuccessRate:       rate,
			ConsecutiveErrors: p.ConsecutiveErrors,
			Score:             rate - float64(p.ConsecutiveErrors)*penaltyWeight,
		})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	return scores
}
