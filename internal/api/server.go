package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xZoluGames/skinfetch/internal/config"
	"github.com/xZoluGames/skinfetch/internal/engine"
	"github.com/xZoluGames/skinfetch/internal/progress"
)

const readyzTimeout = 2 * time.Second

// PoolStats exposes live proxy pool health.
type PoolStats interface {
	Stats() []engine.PoolHealth
}

// ProgressSource exposes the active run's snapshot.
type ProgressSource interface {
	Snapshot() progress.Snapshot
}

// Pinger reports whether a downstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the ops endpoints to the pool manager and the active run.
type Server struct {
	router  chi.Router
	pools   PoolStats
	db      Pinger
	metrics http.Handler
	logger  *zap.Logger

	mu       sync.RWMutex
	progress ProgressSource
}

// NewServer constructs a Server with middleware and routes. pools, db and
// gatherer may be nil; the matching endpoints answer 503 until wired.
func NewServer(
	pools PoolStats,
	db Pinger,
	gatherer prometheus.Gatherer,
	cfg config.ServerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pools:  pools,
		db:     db,
		logger: logger,
	}
	if gatherer != nil {
		s.metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.APIKey != "" {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pools", s.getPools)
		r.Get("/progress", s.getProgress)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetProgress points the progress endpoint at the current run's tracker.
// Passing nil detaches it between runs.
func (s *Server) SetProgress(src ProgressSource) {
	s.mu.Lock()
	s.progress = src
	s.mu.Unlock()
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyzTimeout)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "run history store unreachable")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		s.writeError(w, http.StatusServiceUnavailable, "metrics disabled")
		return
	}
	s.metrics.ServeHTTP(w, r)
}

func (s *Server) getPools(w http.ResponseWriter, _ *http.Request) {
	if s.pools == nil {
		s.writeError(w, http.StatusServiceUnavailable, "proxy pools disabled")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"pools": s.pools.Stats()})
}

func (s *Server) getProgress(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	src := s.progress
	s.mu.RUnlock()
	if src == nil {
		s.writeError(w, http.StatusNotFound, "no active run")
		return
	}
	s.writeJSON(w, http.StatusOK, src.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}
