package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xZoluGames/skinfetch/internal/engine"
)

type jsonParser struct{}

func (jsonParser) Parse(data []byte) ([]engine.Record, error) {
	var records []engine.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

type countingTracker struct {
	observed  atomic.Int64
	onObserve func(n int64)
}

func (t *countingTracker) Observe(engine.Result) {
	n := t.observed.Add(1)
	if t.onObserve != nil {
		t.onObserve(n)
	}
}

type recordingProxySource struct {
	mu        sync.Mutex
	successes int
	failures  int
}

func (s *recordingProxySource) GetProxy() (string, string, error) {
	// Empty proxy URL keeps the test traffic direct while still exercising
	// the health-report wiring against pool-1.
	return "", "pool-1", nil
}

func (s *recordingProxySource) ReportSuccess(string, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes++
}

func (s *recordingProxySource) ReportFailure(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
}

func (s *recordingProxySource) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successes, s.failures
}

type exhaustedSource struct{}

func (exhaustedSource) GetProxy() (string, string, error) {
	return "", "", errors.New("no proxy available")
}
func (exhaustedSource) ReportSuccess(string, time.Duration) {}
func (exhaustedSource) ReportFailure(string)                {}

func newTestOrchestrator(t *testing.T, proxies engine.ProxySource, tracker Tracker, cfg Config) *Orchestrator {
	t.Helper()
	o, err := New(NewClient(ClientConfig{}, zap.NewNop()), proxies, jsonParser{}, tracker, cfg, zap.NewNop())
	require.NoError(t, err)
	return o
}

func TestNewOrchestratorValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, jsonParser{}, nil, Config{}, zap.NewNop())
	require.Error(t, err)

	_, err = New(NewClient(ClientConfig{}, zap.NewNop()), nil, nil, nil, Config{}, zap.NewNop())
	require.Error(t, err)
}

func TestOrchestratorRunEmpty(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, nil, nil, Config{Workers: 4})
	results, err := o.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, results)
}

// A thousand pages over fifty workers, with one unit forced through two
// transport failures, must drain completely with that unit appearing exactly
// once in the results.
func TestOrchestratorDrainsAllUnitsUnderInjectedFailures(t *testing.T) {
	t.Parallel()

	var flakyHits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("start")
		if offset == "4200" && flakyHits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, `[{"name":"item-%s","price":1.5}]`, offset)
	}))
	defer srv.Close()

	units, err := BuildPageUnits(srv.URL+"/market?start={offset}&count={count}", 100000, 100)
	require.NoError(t, err)
	require.Len(t, units, 1000)

	proxies := &recordingProxySource{}
	tracker := &countingTracker{}
	o := newTestOrchestrator(t, proxies, tracker, Config{
		Workers: 50,
		Timeout: 5 * time.Second,
		Policy:  Unbounded(time.Millisecond, 5*time.Millisecond),
	})

	results, err := o.Run(context.Background(), units)
	require.NoError(t, err)
	require.Len(t, results, 1000)
	require.Equal(t, int64(1000), tracker.observed.Load())

	seen := make(map[string]int, len(results))
	for _, res := range results {
		require.True(t, res.Success, "unit %s failed", res.Unit.ID)
		seen[res.Unit.ID]++
	}
	require.Len(t, seen, 1000)
	require.Equal(t, 1, seen["page-4200"])

	for _, res := range results {
		if res.Unit.ID != "page-4200" {
			continue
		}
		require.Equal(t, 3, res.Attempts)
		require.Len(t, res.Records, 1)
		require.Equal(t, "item-4200", res.Records[0].Name)
	}

	successes, failures := proxies.counts()
	require.Equal(t, 1000, successes)
	require.Equal(t, 2, failures)
}

func TestOrchestratorBoundedPolicyYieldsEmptyResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	units, err := BuildPageUnits(srv.URL+"/market?start={offset}&count={count}", 100, 10)
	require.NoError(t, err)

	proxies := &recordingProxySource{}
	o := newTestOrchestrator(t, proxies, nil, Config{
		Workers: 3,
		Timeout: time.Second,
		Policy:  Bounded(2, 0, 0),
	})

	results, err := o.Run(context.Background(), units)
	require.NoError(t, err, "a failed unit is a result, not a run error")
	require.Len(t, results, 10)
	for _, res := range results {
		require.False(t, res.Success)
		require.Equal(t, 2, res.Attempts)
		require.Empty(t, res.Records)
	}

	_, failures := proxies.counts()
	require.Equal(t, 20, failures)
}

func TestOrchestratorTreatsMalformedPayloadAsTransportFailure(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.Write([]byte("<html>interstitial</html>"))
			return
		}
		w.Write([]byte(`[{"name":"x","price":2}]`))
	}))
	defer srv.Close()

	proxies := &recordingProxySource{}
	o := newTestOrchestrator(t, proxies, nil, Config{
		Workers: 1,
		Timeout: time.Second,
		Policy:  Unbounded(0, 0),
	})

	results, err := o.Run(context.Background(), []engine.Unit{
		{ID: "page-0", Kind: engine.UnitKindPage, URL: srv.URL},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Success)
	require.Equal(t, 2, results[0].Attempts)

	successes, failures := proxies.counts()
	require.Equal(t, 1, successes)
	require.Equal(t, 1, failures)
}

func TestOrchestratorFetchesDirectlyOnPoolExhaustion(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, exhaustedSource{}, nil, Config{
		Workers: 1,
		Timeout: time.Second,
		Policy:  Bounded(1, 0, 0),
	})

	results, err := o.Run(context.Background(), []engine.Unit{
		{ID: "page-0", Kind: engine.UnitKindPage, URL: srv.URL},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Success)
	require.Empty(t, results[0].PoolID)
}

func TestOrchestratorCancellationStopsDispatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	units, err := BuildPageUnits(srv.URL+"/market?start={offset}&count={count}", 200, 10)
	require.NoError(t, err)
	require.Len(t, units, 20)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tracker := &countingTracker{}
	tracker.onObserve = func(n int64) {
		if n == 5 {
			cancel()
		}
	}

	o := newTestOrchestrator(t, nil, tracker, Config{
		Workers: 1,
		Timeout: time.Second,
		Policy:  Bounded(1, 0, 0),
	})

	results, err := o.Run(ctx, units)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 5, "nothing past the cancellation point is counted")
}
