// Package cmd defines and implements the CLI commands for the skinfetch
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xZoluGames/skinfetch/internal/app"
	"github.com/xZoluGames/skinfetch/internal/config"
	"github.com/xZoluGames/skinfetch/internal/logging"
)

var (
	cfgFile string
	logDev  bool
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so tests can substitute
// a factory that builds against in-memory backends.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command. The PersistentPreRunE
// hook loads configuration, builds the logger and initializes the application
// before any subcommand runs; PersistentPostRun tears everything down after.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skinfetch",
		Short: "Proxy-pooled concurrent market extraction engine.",
		Long: `skinfetch pulls full market listings from a remote API through rotating
proxy pools, reconciles every run into a persistent merge document and
reports progress, pool health and run history along the way.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			development := cfg.Logging.Development
			if c.Root().PersistentFlags().Changed("log-dev") {
				development = logDev
			}
			logger, err := logging.New(development)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}

			appInstance, err := newApp(c.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}

			// Store the app instance in the context for subcommands to use.
			c.SetContext(context.WithValue(c.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(c *cobra.Command, _ []string) {
			if appInstance, ok := c.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default searches ., /etc/skinfetch and $HOME/.skinfetch)")
	cmd.PersistentFlags().BoolVar(&logDev, "log-dev", false,
		"force development (console) logging regardless of configuration")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newPoolsCmd())

	return cmd
}

// resolveApp retrieves the initialized application from the command context.
func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
