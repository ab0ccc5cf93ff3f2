package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newServeCmd creates and configures the 'serve' subcommand, the continuous
// extraction loop.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs extraction cycles on a jittered interval",
		Long: `Starts the ops HTTP server (when enabled) and repeats extraction cycles
with a jittered pause between them until interrupted. A failed cycle is
logged and the loop continues; SIGINT or SIGTERM stops the loop after the
in-flight cycle winds down.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if appInstance.Server() != nil {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", appInstance.Config().Server.Port),
			Handler:           appInstance.Server().Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("ops server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("ops server shutdown", zap.Error(err))
			}
		}()
	}

	interval := appInstance.Config().Serve.Interval()
	jitter := appInstance.Config().Serve.Jitter()
	logger.Info("serve loop starting",
		zap.Duration("interval", interval),
		zap.Duration("jitter", jitter))

	for {
		summary, err := executeRun(ctx, appInstance)
		switch {
		case err == nil:
			logger.Info("cycle finished",
				zap.String("run_id", summary.RunID),
				zap.Int("records", summary.Records),
				zap.Int("merge_new", summary.MergeNew),
				zap.Int("merge_updated", summary.MergeUpdated))
		case errors.Is(err, context.Canceled):
			logger.Info("serve loop stopped")
			return nil
		default:
			logger.Error("cycle failed", zap.Error(err))
		}

		pause := interval
		if jitter > 0 {
			pause += time.Duration(rand.Int63n(int64(jitter)))
		}
		logger.Info("sleeping until next cycle", zap.Duration("pause", pause))
		select {
		case <-ctx.Done():
			logger.Info("serve loop stopped")
			return nil
		case <-time.After(pause):
		}
	}
}
