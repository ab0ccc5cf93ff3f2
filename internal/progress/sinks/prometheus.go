package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xZoluGames/skinfetch/internal/progress"
)

// PrometheusSink exports fetch-run progress via Prometheus. It owns all
// collectors for unit counts, derived rates, and final pool scores.
type PrometheusSink struct {
	unitsTotal        prometheus.Gauge
	unitsCompleted    prometheus.Gauge
	unitsSucceeded    prometheus.Gauge
	recordsFetched    prometheus.Gauge
	requestsTotal     prometheus.Gauge
	consecutiveErrors prometheus.Gauge
	successRate       prometheus.Gauge
	unitsPerMinute    prometheus.Gauge
	etaSeconds        prometheus.Gauge
	runsFinished      prometheus.Counter
	poolScore         *prometheus.GaugeVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		unitsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skinfetch_units_total",
			Help: "Units scheduled for the current run.",
		}),
		unitsCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skinfetch_units_completed",
			Help: "Units completed so far in the current run.",
		}),
		unitsSucceeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skinfetch_units_succeeded",
			Help: "Units completed successfully in the current run.",
		}),
		recordsFetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skinfetch_records_fetched",
			Help: "Records extracted so far in the current run.",
		}),
		requestsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skinfetch_requests_total",
			Help: "HTTP attempts made so far in the current run, retries included.",
		}),
		consecutiveErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skinfetch_consecutive_errors",
			Help: "Smoothed consecutive-error counter (decremented on success).",
		}),
		successRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skinfetch_success_rate",
			Help: "Fraction of completed units that succeeded.",
		}),
		unitsPerMinute: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skinfetch_units_per_minute",
			Help: "Throughput of the current run.",
		}),
		etaSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skinfetch_eta_seconds",
			Help: "Estimated seconds until the current run drains.",
		}),
		runsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skinfetch_runs_finished_total",
			Help: "Total runs that reached their final snapshot.",
		}),
		poolScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "skinfetch_pool_score",
			Help: "End-of-run pool score partitioned by pool and region.",
		}, []string{"pool_id", "region"}),
	}
	for _, collector := range []prometheus.Collector{
		s.unitsTotal,
		s.unitsCompleted,
		s.unitsSucceeded,
		s.recordsFetched,
		s.requestsTotal,
		s.consecutiveErrors,
		s.successRate,
		s.unitsPerMinute,
		s.etaSeconds,
		s.runsFinished,
		s.poolScore,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume projects the snapshot onto the collectors. It is safe for
// concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, snap progress.Snapshot) error {
	s.unitsTotal.Set(float64(snap.TotalUnits))
	s.unitsCompleted.Set(float64(snap.Completed))
	s.unitsSucceeded.Set(float64(snap.Succeeded))
	s.recordsFetched.Set(float64(snap.Records))
	s.requestsTotal.Set(float64(snap.Requests))
	s.consecutiveErrors.Set(float64(snap.ConsecutiveErrors))
	s.successRate.Set(snap.SuccessRate)
	s.unitsPerMinute.Set(snap.UnitsPerMin)
	s.etaSeconds.Set(snap.ETA.Seconds())

	if snap.Stage == progress.StageFinal {
		s.runsFinished.Inc()
		for _, score := range snap.PoolScores {
			s.poolScore.WithLabelValues(score.PoolID, score.Region).Set(score.Score)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
