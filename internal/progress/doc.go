// Package progress aggregates per-unit fetch outcomes into run-level counters
// and emits snapshots to pluggable sinks at a sparse milestone schedule: the
// first few completions, every Nth after that, and once at the end with a
// ranked pool report.
package progress
