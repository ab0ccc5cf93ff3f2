package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// maxBodyBytes caps a single response read. Bulk market pages run to a few
// megabytes; anything past this is garbage, not data.
const maxBodyBytes = 32 << 20

type proxyCtxKey struct{}

// withProxy stamps the proxy URI for one request onto its context. The shared
// transport reads it back per request, so every worker can route through a
// different proxy over the same connection pool.
func withProxy(ctx context.Context, proxyURL string) context.Context {
	if proxyURL == "" {
		return ctx
	}
	return context.WithValue(ctx, proxyCtxKey{}, proxyURL)
}

func proxyFromContext(req *http.Request) (*url.URL, error) {
	raw, _ := req.Context().Value(proxyCtxKey{}).(string)
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse proxy uri: %w", err)
	}
	return u, nil
}

// Request describes one outbound attempt.
type Request struct {
	URL     string
	Headers map[string]string
	// ProxyURL routes the attempt; empty means a direct fetch.
	ProxyURL string
	// Timeout bounds this attempt only, never the caller's retry loop.
	Timeout time.Duration
}

// Response is a successfully completed attempt.
type Response struct {
	StatusCode int
	Body       []byte
	Latency    time.Duration
}

// ClientConfig tunes the shared HTTP client.
type ClientConfig struct {
	// RebuildThreshold is the connection-error streak that tears down and
	// recreates the whole client. Zero disables rebuilds.
	RebuildThreshold int64
	// ConnsPerHost sizes the per-host connection pool.
	ConnsPerHost int
}

// Client is the single HTTP client shared by all fetch workers. The inner
// http.Client sits behind an atomic pointer; when low-level connection errors
// accumulate past the rebuild threshold the client is swapped wholesale, so a
// poisoned connection pool is treated as a systemic fault rather than a
// per-request condition.
type Client struct {
	cfg    ClientConfig
	logger *zap.Logger

	current    atomic.Pointer[http.Client]
	connErrors atomic.Int64
	rebuilds   atomic.Int64
}

// NewClient builds the shared client.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConnsPerHost <= 0 {
		cfg.ConnsPerHost = 16
	}
	c := &Client{cfg: cfg, logger: logger}
	c.current.Store(newHTTPClient(cfg.ConnsPerHost))
	return c
}

func newHTTPClient(connsPerHost int) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: proxyFromContext,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   15 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   connsPerHost,
			MaxConnsPerHost:       connsPerHost,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Do executes one GET attempt. Transport-level failures (dial, TLS, timeout,
// truncated body) feed the connection-error streak; HTTP-level failures (bad
// status) do not.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	ctx = withProxy(ctx, req.ProxyURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.current.Load().Do(httpReq)
	if err != nil {
		c.noteConnError()
		return Response{}, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.noteConnError()
		return Response{}, fmt.Errorf("read body of %s: %w", req.URL, err)
	}
	latency := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("fetch %s: unexpected status %d", req.URL, resp.StatusCode)
	}

	c.noteSuccess()
	return Response{StatusCode: resp.StatusCode, Body: body, Latency: latency}, nil
}

// ConnErrors reports the current connection-error streak. The pacer turns it
// into a penalty delay.
func (c *Client) ConnErrors() int64 {
	return c.connErrors.Load()
}

// Rebuilds reports how many times the inner client has been replaced.
func (c *Client) Rebuilds() int64 {
	return c.rebuilds.Load()
}

func (c *Client) noteSuccess() {
	// Decrement rather than reset, so an isolated success inside a bad
	// stretch does not hide a systemic fault.
	for {
		n := c.connErrors.Load()
		if n <= 0 {
			return
		}
		if c.connErrors.CompareAndSwap(n, n-1) {
			return
		}
	}
}

func (c *Client) noteConnError() {
	streak := c.connErrors.Add(1)
	if c.cfg.RebuildThreshold <= 0 || streak < c.cfg.RebuildThreshold {
		return
	}
	old := c.current.Load()
	if !c.current.CompareAndSwap(old, newHTTPClient(c.cfg.ConnsPerHost)) {
		// Another worker already swapped.
		return
	}
	c.connErrors.Store(0)
	n := c.rebuilds.Add(1)
	old.CloseIdleConnections()
	c.logger.Warn("rebuilt shared http client after connection error streak",
		zap.Int64("streak", streak),
		zap.Int64("rebuilds", n))
}
