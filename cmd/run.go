package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xZoluGames/skinfetch/internal/app"
	"github.com/xZoluGames/skinfetch/internal/engine"
	"github.com/xZoluGames/skinfetch/internal/queue"
)

// newRunCmd creates and configures the 'run' subcommand, a single extraction
// cycle from unit building through merge and run history.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Executes one extraction run",
		Long: `Builds the unit list for the active profile, sizes the worker pool
against host resources and proxy capacity, fetches every unit and merges
the results into the persistent document.`,
		RunE: runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	summary, err := executeRun(cmd.Context(), appInstance)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			appInstance.Logger().Info("run interrupted")
			return nil
		}
		return err
	}

	appInstance.Logger().Info("run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("total_units", summary.TotalUnits),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("records", summary.Records),
		zap.Int("merge_new", summary.MergeNew),
		zap.Int("merge_updated", summary.MergeUpdated),
		zap.String("best_region", summary.BestRegion))
	return nil
}

// executeRun drives one full extraction cycle: unit building, worker sizing,
// the fetch run itself, the merge, then run history and the completion
// notice. The run and serve commands share it.
func executeRun(ctx context.Context, a *app.App) (engine.RunSummary, error) {
	runID, err := a.NewRunID()
	if err != nil {
		return engine.RunSummary{}, err
	}
	logger := a.Logger().With(zap.String("run_id", runID))

	units, err := a.Units(ctx)
	if err != nil {
		return engine.RunSummary{}, fmt.Errorf("build units: %w", err)
	}
	profile := a.Profile()
	if len(units) == 0 {
		logger.Warn("no units to fetch, skipping cycle")
		return engine.RunSummary{RunID: runID, Profile: profile.Name}, nil
	}

	proxyCount := 0
	if pools := a.Pools(); pools != nil {
		for _, h := range pools.Stats() {
			if h.Active {
				proxyCount += h.Credentials
			}
		}
	}
	workers := a.Sizer().OptimalWorkers(ctx, profile, proxyCount, len(units))

	tracker := a.Tracker(runID, len(units))
	if srv := a.Server(); srv != nil {
		srv.SetProgress(tracker)
		defer srv.SetProgress(nil)
	}

	orch, err := a.Orchestrator(workers, tracker)
	if err != nil {
		return engine.RunSummary{}, err
	}

	results, err := orch.Run(ctx, units)
	if err != nil {
		_ = tracker.Close(context.Background())
		return engine.RunSummary{}, err
	}

	var health []engine.PoolHealth
	if pools := a.Pools(); pools != nil {
		health = pools.Stats()
	}
	summary := tracker.Finish(health)
	summary.Profile = profile.Name

	fresh := make([]engine.Record, 0, len(results))
	for _, res := range results {
		fresh = append(fresh, res.Records...)
	}
	counts, err := a.Merge().Merge(ctx, fresh)
	if err != nil {
		_ = tracker.Close(context.Background())
		return summary, fmt.Errorf("merge results: %w", err)
	}
	summary.MergeExisting = counts.Existing
	summary.MergeNew = counts.New
	summary.MergeUpdated = counts.Updated
	summary.MergeSkipped = counts.Skipped
	summary.MergeTotal = counts.Total

	if err := tracker.Close(ctx); err != nil {
		logger.Warn("close progress tracker", zap.Error(err))
	}

	// Run history and the completion notice are best effort; the merged
	// document is already durable at this point.
	if err := a.Database().SaveRun(ctx, summary); err != nil {
		logger.Warn("save run history", zap.Error(err))
	}
	if err := a.Queue().Publish(ctx, queue.FromSummary(summary)); err != nil {
		logger.Warn("publish run notice", zap.Error(err))
	}

	return summary, nil
}
