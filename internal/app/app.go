// Package app initializes and holds the long-lived services, acting as the
// dependency injection container for the commands. Every component is an
// explicit instance built here and passed by reference; the zap logger is
// constructed once and injected everywhere.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xZoluGames/skinfetch/internal/api"
	systemclock "github.com/xZoluGames/skinfetch/internal/clock/system"
	"github.com/xZoluGames/skinfetch/internal/config"
	"github.com/xZoluGames/skinfetch/internal/database"
	"github.com/xZoluGames/skinfetch/internal/engine"
	"github.com/xZoluGames/skinfetch/internal/fetch"
	"github.com/xZoluGames/skinfetch/internal/hash/sha256"
	uuidgen "github.com/xZoluGames/skinfetch/internal/id/uuid"
	"github.com/xZoluGames/skinfetch/internal/mergestore"
	"github.com/xZoluGames/skinfetch/internal/progress"
	"github.com/xZoluGames/skinfetch/internal/progress/sinks"
	"github.com/xZoluGames/skinfetch/internal/proxypool"
	"github.com/xZoluGames/skinfetch/internal/queue"
	"github.com/xZoluGames/skinfetch/internal/sizing"
	"github.com/xZoluGames/skinfetch/internal/storage"
	"github.com/xZoluGames/skinfetch/internal/storage/gcs"
	"github.com/xZoluGames/skinfetch/internal/storage/local"
	"github.com/xZoluGames/skinfetch/internal/storage/memory"
)

// App holds the shared long-lived services, initialized once at startup and
// torn down by Close.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	clock    engine.Clock
	idGen    engine.IDGenerator
	registry *prometheus.Registry
	promSink *sinks.PrometheusSink

	blobs  storage.Provider
	merge  *mergestore.Store
	db     database.Provider
	queue  queue.Provider
	pools  *proxypool.Manager
	client *fetch.Client
	sizer  *sizing.Sizer
	server *api.Server
}

// New builds every service the configuration asks for. It fails fast: any
// provider that cannot be initialized aborts startup.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		clock:    systemclock.New(),
		idGen:    uuidgen.New(),
		registry: prometheus.NewRegistry(),
	}

	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return nil, fmt.Errorf("initialize progress metrics: %w", err)
	}
	a.promSink = promSink

	if err := a.initStorage(ctx); err != nil {
		return nil, err
	}
	if err := a.initMergeStore(); err != nil {
		return nil, err
	}
	if err := a.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := a.initQueue(ctx); err != nil {
		return nil, err
	}
	if err := a.initProxyPools(ctx); err != nil {
		return nil, err
	}

	profile := a.Profile()
	a.client = fetch.NewClient(fetch.ClientConfig{
		RebuildThreshold: int64(cfg.Fetch.RebuildThreshold),
		ConnsPerHost:     profile.ConnsPerHost,
	}, logger)
	a.sizer = sizing.NewSizer(sizing.NewGopsutilProbe(logger), logger)

	if cfg.Server.Enabled {
		var poolStats api.PoolStats
		if a.pools != nil {
			poolStats = a.pools
		}
		a.server = api.NewServer(poolStats, a.db, a.registry, cfg.Server, logger)
	}

	logger.Info("application services initialized",
		zap.String("storage", cfg.Store.Backend),
		zap.Bool("database", cfg.DB.DSN != ""),
		zap.Bool("pubsub", cfg.PubSub.ProjectID != ""),
		zap.Bool("proxies", cfg.Proxy.Enabled),
		zap.String("profile", cfg.Fetch.Profile),
	)
	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case "local":
		provider, err := local.New(local.Config{BaseDir: a.cfg.Store.LocalDir})
		if err != nil {
			return fmt.Errorf("initialize local storage: %w", err)
		}
		a.blobs = provider
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		provider, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Store.GCSBucket})
		if err != nil {
			return fmt.Errorf("initialize gcs storage: %w", err)
		}
		a.blobs = provider
	case "memory":
		a.blobs = memory.New()
	case "noop":
		a.blobs = &storage.NoOpProvider{}
	default:
		return fmt.Errorf("unknown storage backend %q", a.cfg.Store.Backend)
	}
	return nil
}

func (a *App) initMergeStore() error {
	store, err := mergestore.New(a.blobs, sha256.New(), a.clock, a.logger, mergestore.Config{
		ObjectName: a.cfg.Store.Object,
		Tolerance:  a.cfg.Store.Tolerance,
		Archive:    a.cfg.Store.Archive,
	})
	if err != nil {
		return fmt.Errorf("initialize merge store: %w", err)
	}
	a.merge = store
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.db = database.NoOpProvider{}
		return nil
	}
	provider, err := database.NewPostgres(ctx, database.PostgresConfig{
		DSN:      a.cfg.DB.DSN,
		MaxConns: int32(a.cfg.DB.MaxConns),
	})
	if err != nil {
		return fmt.Errorf("initialize run history store: %w", err)
	}
	a.db = provider
	return nil
}

func (a *App) initQueue(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.queue = queue.NoOpProvider{}
		return nil
	}
	provider, err := queue.NewPubSub(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName, a.logger)
	if err != nil {
		return fmt.Errorf("initialize notification queue: %w", err)
	}
	a.queue = provider
	return nil
}

func (a *App) initProxyPools(ctx context.Context) error {
	if !a.cfg.Proxy.Enabled {
		return nil
	}
	vendor, err := proxypool.NewVendorClient(proxypool.VendorConfig{
		Endpoint: a.cfg.Provisioning.Endpoint,
		Token:    a.cfg.Provisioning.Token,
		Scheme:   a.cfg.Proxy.Scheme,
	}, &http.Client{Timeout: time.Duration(a.cfg.Provisioning.TimeoutSeconds) * time.Second}, a.logger)
	if err != nil {
		return fmt.Errorf("initialize provisioning client: %w", err)
	}
	egress := proxypool.NewEgressDetector(a.cfg.Egress.EchoURLs, a.cfg.Egress.FallbackIP, nil, a.logger)
	manager, err := proxypool.NewManager(proxypool.Config{
		Mode:                   proxypool.Mode(a.cfg.Proxy.Mode),
		PoolCount:              a.cfg.Proxy.PoolCount,
		ProxiesPerPool:         a.cfg.Proxy.ProxiesPerPool,
		Regions:                a.cfg.Proxy.Regions,
		StaticWhitelist:        a.cfg.Egress.Whitelist,
		DisableThresholdSingle: a.cfg.Proxy.DisableThresholdSingle,
		DisableThresholdMulti:  a.cfg.Proxy.DisableThresholdMulti,
	}, vendor, egress, a.clock, a.logger)
	if err != nil {
		return fmt.Errorf("initialize proxy pools: %w", err)
	}
	manager.AutoDetectEgressIP(ctx)
	if err := manager.Initialize(ctx); err != nil {
		return fmt.Errorf("provision proxy pools: %w", err)
	}
	a.pools = manager
	return nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Clock returns the shared clock.
func (a *App) Clock() engine.Clock { return a.clock }

// Merge returns the incremental merge store.
func (a *App) Merge() *mergestore.Store { return a.merge }

// Database returns the run-history provider.
func (a *App) Database() database.Provider { return a.db }

// Queue returns the notification provider.
func (a *App) Queue() queue.Provider { return a.queue }

// Pools returns the proxy pool manager, nil when proxies are disabled.
func (a *App) Pools() *proxypool.Manager { return a.pools }

// Sizer returns the worker-count sizer.
func (a *App) Sizer() *sizing.Sizer { return a.sizer }

// Server returns the ops server, nil when disabled.
func (a *App) Server() *api.Server { return a.server }

// NewRunID mints a UUIDv7 run identifier.
func (a *App) NewRunID() (string, error) {
	id, err := a.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("mint run id: %w", err)
	}
	return id, nil
}

// Profile returns the active fetch profile as the sizer consumes it.
func (a *App) Profile() sizing.Profile {
	p := a.cfg.ActiveProfile()
	return sizing.Profile{
		Name:         a.cfg.Fetch.Profile,
		Multiplier:   p.Multiplier,
		MemDivisorGB: p.MemDivisorGB,
		MemFactorCap: p.MemFactorCap,
		MinWorkers:   p.MinWorkers,
		MaxWorkers:   p.MaxWorkers,
		Timeout:      p.Timeout(),
		RequestDelay: p.RequestDelay(),
		RetryBase:    p.RetryBase(),
		RetryMax:     p.RetryMax(),
		MaxAttempts:  p.MaxAttempts,
		BatchSize:    p.BatchSize,
		ConnsPerHost: p.ConnsPerHost,
	}
}

// FetchConfig materializes the orchestrator config for one run.
func (a *App) FetchConfig(workers int) fetch.Config {
	profile := a.Profile()
	policy := fetch.Unbounded(profile.RetryBase, profile.RetryMax)
	if !profile.Unbounded() {
		policy = fetch.Bounded(profile.MaxAttempts, profile.RetryBase, profile.RetryMax)
	}
	return fetch.Config{
		Workers:      workers,
		Headers:      a.cfg.Target.Headers,
		Timeout:      profile.Timeout,
		RequestDelay: profile.RequestDelay,
		Policy:       policy,
		PenaltyStep:  time.Duration(a.cfg.Fetch.PenaltyStepMs) * time.Millisecond,
		PenaltyCap:   time.Duration(a.cfg.Fetch.PenaltyCapMs) * time.Millisecond,
	}
}

// Orchestrator builds a fetch orchestrator for one run.
func (a *App) Orchestrator(workers int, tracker fetch.Tracker) (*fetch.Orchestrator, error) {
	var proxies engine.ProxySource
	if a.pools != nil {
		proxies = a.pools
	}
	orch, err := fetch.New(a.client, proxies, marketParser{}, tracker, a.FetchConfig(workers), a.logger)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	return orch, nil
}

// Tracker builds the progress tracker for one run, wired to the log,
// prometheus and run-history sinks.
func (a *App) Tracker(runID string, totalUnits int) *progress.Tracker {
	return progress.NewTracker(progress.Config{
		RunID:           runID,
		TotalUnits:      totalUnits,
		FirstMilestones: a.cfg.Progress.FirstMilestones,
		EveryNth:        a.cfg.Progress.EveryNth,
		PenaltyWeight:   a.cfg.Progress.PenaltyWeight,
	}, a.clock, a.logger,
		sinks.NewLogSink(a.logger),
		a.promSink,
		sinks.NewStoreSink(a.db, a.logger),
	)
}

// Units builds the run's unit list from the target configuration. The bulk
// profile pages through the listing endpoint; the probe profile asks per
// item using the names already persisted.
func (a *App) Units(ctx context.Context) ([]engine.Unit, error) {
	if a.cfg.Fetch.Profile == "probe" {
		records, err := a.merge.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load persisted names: %w", err)
		}
		names := make([]string, 0, len(records))
		for _, rec := range records {
			names = append(names, rec.Name)
		}
		units, err := fetch.BuildProbeUnits(a.cfg.Target.ProbeURL, names, a.cfg.Target.ProbeLimit)
		if err != nil {
			return nil, fmt.Errorf("build probe units: %w", err)
		}
		return units, nil
	}
	units, err := fetch.BuildPageUnits(a.cfg.Target.PageURL, a.cfg.Target.TotalItems, a.cfg.Target.PageSize)
	if err != nil {
		return nil, fmt.Errorf("build page units: %w", err)
	}
	return units, nil
}

// Close gracefully shuts down every service. It is called by a cobra hook
// after the command finishes.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	if a.db != nil {
		a.db.Close()
	}
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.logger.Warn("close notification queue", zap.Error(err))
		}
	}
	// Flushing the logger is best effort; stderr may be gone already.
	_ = a.logger.Sync()
}
