// Package fetch executes independent fetch units over a fixed-size worker
// pool. Each worker paces itself, pulls a proxy for every attempt, and runs
// one shared retry executor; a single pooled HTTP client is shared by the
// whole fleet and rebuilt wholesale when connection errors pile up.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xZoluGames/skinfetch/internal/engine"
)

// Tracker observes each completed unit. Implementations decide their own
// reporting schedule.
type Tracker interface {
	Observe(res engine.Result)
}

// Config tunes one orchestrator run.
type Config struct {
	// Workers sizes the pool; the resource sizer supplies it.
	Workers int
	// Headers are sent with every attempt.
	Headers map[string]string
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// RequestDelay is the per-worker gap between dispatches.
	RequestDelay time.Duration
	// Policy is the retry budget shared by every unit of the run.
	Policy Policy
	// PenaltyStep and PenaltyCap shape the pacing penalty applied while
	// connection errors accumulate on the shared client.
	PenaltyStep time.Duration
	PenaltyCap  time.Duration
}

// Orchestrator drives fetch units to completion. Units are independent: no
// unit's outcome affects another's beyond the shared proxy-health signal.
type Orchestrator struct {
	client  *Client
	proxies engine.ProxySource
	parser  engine.Parser
	tracker Tracker
	cfg     Config
	logger  *zap.Logger
}

// New builds an Orchestrator. client and parser are required; a nil proxies
// source means every attempt fetches directly, and a nil tracker disables
// progress reporting.
func New(
	client *Client,
	proxies engine.ProxySource,
	parser engine.Parser,
	tracker Tracker,
	cfg Config,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if client == nil {
		return nil, errors.New("fetch: client is required")
	}
	if parser == nil {
		return nil, errors.New("fetch: parser is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		client:  client,
		proxies: proxies,
		parser:  parser,
		tracker: tracker,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Run executes all units and returns their results in completion order.
// Cancelling the context stops dispatch; in-flight units finish or fail
// naturally and units cut off mid-retry are not counted as completed.
func (o *Orchestrator) Run(ctx context.Context, units []engine.Unit) ([]engine.Result, error) {
	if len(units) == 0 {
		return nil, nil
	}
	workers := o.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	o.logger.Info("starting fetch run",
		zap.Int("units", len(units)),
		zap.Int("workers", workers),
		zap.Bool("unbounded_retry", o.cfg.Policy.Unlimited()))

	var (
		mu      sync.Mutex
		results = make([]engine.Result, 0, len(units))
	)
	collect := func(res engine.Result) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
		if o.tracker != nil {
			o.tracker.Observe(res)
		}
	}

	g, runCtx := errgroup.WithContext(ctx)
	unitCh := make(chan engine.Unit)

	g.Go(func() error {
		defer close(unitCh)
		for _, u := range units {
			select {
			case unitCh <- u:
			case <-runCtx.Done():
				return runCtx.Err()
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			pacer := NewPacer(o.cfg.RequestDelay, o.client, o.cfg.PenaltyStep, o.cfg.PenaltyCap)
			for unit := range unitCh {
				res, err := o.executeUnit(runCtx, pacer, unit)
				if err != nil {
					return err
				}
				collect(res)
			}
			return nil
		})
	}

	err := g.Wait()
	mu.Lock()
	out := results
	mu.Unlock()
	if err != nil {
		return out, fmt.Errorf("fetch run: %w", err)
	}
	return out, nil
}

// executeUnit runs one unit to a terminal outcome. The returned error is
// non-nil only when the context ended mid-unit; a bounded unit that exhausts
// its budget comes back as a normal unsuccessful Result.
func (o *Orchestrator) executeUnit(ctx context.Context, pacer *Pacer, unit engine.Unit) (engine.Result, error) {
	res := engine.Result{Unit: unit}
	attempts, err := Retry(ctx, o.cfg.Policy, func(attempt int) error {
		if err := pacer.Wait(ctx); err != nil {
			return err
		}
		records, latency, poolID, err := o.attempt(ctx, unit)
		if err != nil {
			o.logger.Debug("attempt failed",
				zap.String("unit", unit.ID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		res.Success = true
		res.Records = records
		res.Latency = latency
		res.PoolID = poolID
		return nil
	})
	res.Attempts = attempts
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		o.logger.Warn("unit exhausted its retry budget",
			zap.String("unit", unit.ID),
			zap.Int("attempts", attempts),
			zap.Error(err))
	}
	return res, nil
}

// attempt performs one proxied GET and parse. Pool exhaustion downgrades to a
// direct fetch; every other failure is reported against the pool that served
// the proxy and handed to the retry executor.
func (o *Orchestrator) attempt(ctx context.Context, unit engine.Unit) ([]engine.Record, time.Duration, string, error) {
	var proxyURL, poolID string
	if o.proxies != nil {
		var err error
		proxyURL, poolID, err = o.proxies.GetProxy()
		if err != nil {
			proxyURL, poolID = "", ""
			o.logger.Debug("no proxy available, fetching directly",
				zap.String("unit", unit.ID),
				zap.Error(err))
		}
	}

	resp, err := o.client.Do(ctx, Request{
		URL:      unit.URL,
		Headers:  o.cfg.Headers,
		ProxyURL: proxyURL,
		Timeout:  o.cfg.Timeout,
	})
	if err != nil {
		o.reportFailure(poolID)
		return nil, 0, "", err
	}

	records, err := o.parser.Parse(resp.Body)
	if err != nil {
		// A malformed payload is a transport failure under the same
		// retry policy as a connection error.
		o.reportFailure(poolID)
		return nil, 0, "", fmt.Errorf("parse payload: %w", err)
	}

	if o.proxies != nil && poolID != "" {
		o.proxies.ReportSuccess(poolID, resp.Latency)
	}
	return records, resp.Latency, poolID, nil
}

func (o *Orchestrator) reportFailure(poolID string) {
	if o.proxies == nil || poolID == "" {
		return
	}
	o.proxies.ReportFailure(poolID)
}
