// Package engine defines core types shared across the fetch subsystems.
package engine

import (
	"time"
)

// UnitKind labels the flavor of work a unit performs.
type UnitKind string

// Unit kinds built by the unit builders.
const (
	UnitKindPage  UnitKind = "page"
	UnitKindProbe UnitKind = "probe"
)

// Unit is one independent, idempotent piece of extraction work. Re-executing
// a unit has no side effect beyond producing its own output records.
type Unit struct {
	ID   string   `json:"id"`
	Kind UnitKind `json:"kind"`
	URL  string   `json:"url"`
}

// Record is one keyed market row produced by a parser and reconciled by the
// merge store. Name is the stable item identity.
type Record struct {
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Result is the terminal outcome of executing one unit. A failed bounded-retry
// unit yields Success=false with zero records; that is an acceptable outcome,
// not an error.
type Result struct {
	Unit     Unit          `json:"unit"`
	Success  bool          `json:"success"`
	Records  []Record      `json:"records,omitempty"`
	Attempts int           `json:"attempts"`
	Latency  time.Duration `json:"latency"`
	PoolID   string        `json:"pool_id,omitempty"`
}

// PoolHealth is a point-in-time snapshot of one proxy pool's state, exposed
// for observability and end-of-run scoring.
type PoolHealth struct {
	ID                string    `json:"id"`
	Region            string    `json:"region"`
	Active            bool      `json:"active"`
	Credentials       int       `json:"credentials"`
	SuccessCount      int64     `json:"success_count"`
	ErrorCount        int64     `json:"error_count"`
	ConsecutiveErrors int64     `json:"consecutive_errors"`
	AvgLatencyMs      int64     `json:"avg_latency_ms"`
	LastRefresh       time.Time `json:"last_refresh"`
}

// PoolScore ranks one pool at the end of a run.
type PoolScore struct {
	PoolID            string  `json:"pool_id"`
	Region            string  `json:"region"`
	SuccessRate       float64 `json:"success_rate"`
	ConsecutiveErrors int64   `json:"consecutive_errors"`
	Score             float64 `json:"score"`
}

// RunSummary is the final accounting for one orchestrator run.
type RunSummary struct {
	RunID         string        `json:"run_id"`
	Profile       string        `json:"profile"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	TotalUnits    int           `json:"total_units"`
	Completed     int           `json:"completed"`
	Succeeded     int           `json:"succeeded"`
	Records       int           `json:"records"`
	SuccessRate   float64       `json:"success_rate"`
	UnitsPerMin   float64       `json:"units_per_minute"`
	Duration      time.Duration `json:"duration"`
	BestRegion    string        `json:"best_region,omitempty"`
	PoolScores    []PoolScore   `json:"pool_scores,omitempty"`
	MergeExisting int           `json:"merge_existing"`
	MergeNew      int           `json:"merge_new"`
	MergeUpdated  int           `json:"merge_updated"`
	MergeSkipped  int           `json:"merge_skipped"`
	MergeTotal    int           `json:"merge_total"`
}
