// Package sinks implements concrete snapshot consumers such as Prometheus,
// repository-backed run history, and structured logging. Each sink satisfies
// the progress.Sink interface and is safe for repeated Consume/Close cycles.
package sinks
