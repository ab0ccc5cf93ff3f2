package api

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xZoluGames/skinfetch/internal/config"
	"github.com/xZoluGames/skinfetch/internal/engine"
	"github.com/xZoluGames/skinfetch/internal/progress"
)

type fakePools struct {
	stats []engine.PoolHealth
}

func (f *fakePools) Stats() []engine.PoolHealth { return f.stats }

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(_ context.Context) error { return f.err }

type fakeProgress struct {
	snap progress.Snapshot
}

func (f *fakeProgress) Snapshot() progress.Snapshot { return f.snap }

func newTestServer() *Server {
	return NewServer(nil, nil, nil, config.ServerConfig{}, zap.NewNop())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerHealthz(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServerReadyz(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(), "/readyz")
	require.Equal(t, http.StatusOK, rec.Code, "no database dependency means always ready")

	ready := NewServer(nil, &fakePinger{}, nil, config.ServerConfig{}, zap.NewNop())
	rec = get(t, ready, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	down := NewServer(nil, &fakePinger{err: context.DeadlineExceeded}, nil, config.ServerConfig{}, zap.NewNop())
	rec = get(t, down, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "run history store unreachable")
}

func TestServerMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "skinfetch_test_gauge"})
	require.NoError(t, registry.Register(gauge))
	gauge.Set(42)

	server := NewServer(nil, nil, registry, config.ServerConfig{}, zap.NewNop())
	rec := get(t, server, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "skinfetch_test_gauge 42")

	rec = get(t, newTestServer(), "/metrics")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerPools(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(), "/v1/pools")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	pools := &fakePools{stats: []engine.PoolHealth{
		{ID: "pool-1", Region: "us", Active: true, Credentials: 25, SuccessCount: 900},
		{ID: "pool-2", Region: "eu", Active: false, ConsecutiveErrors: 5},
	}}
	server := NewServer(pools, nil, nil, config.ServerConfig{}, zap.NewNop())
	rec = get(t, server, "/v1/pools")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "pool-1")
	require.Contains(t, rec.Body.String(), `"region":"eu"`)
}

func TestServerProgress(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	rec := get(t, server, "/v1/progress")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "no active run")

	server.SetProgress(&fakeProgress{snap: progress.Snapshot{
		RunID:      "run-1",
		Stage:      progress.StageMilestone,
		TotalUnits: 1000,
		Completed:  250,
	}})
	rec = get(t, server, "/v1/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "run-1")
	require.Contains(t, rec.Body.String(), `"completed":250`)

	server.SetProgress(nil)
	rec = get(t, server, "/v1/progress")
	require.Equal(t, http.StatusNotFound, rec.Code, "progress detaches between runs")
}

func TestServerAPIKey(t *testing.T) {
	t.Parallel()

	server := NewServer(nil, nil, nil, config.ServerConfig{APIKey: "secret"}, zap.NewNop())

	rec := get(t, server, "/healthz")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, server, "/healthz?api_key=secret")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	t.Parallel()

	handler := loggingMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRecoverMiddlewareTurnsPanicInto500(t *testing.T) {
	t.Parallel()

	handler := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NotNil(t, buf)
	require.NoError(t, conn.Close())
	require.NoError(t, h.client.Close())
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func TestRequestTimeout(t *testing.T) {
	t.Parallel()

	handler := timeoutMiddleware(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
