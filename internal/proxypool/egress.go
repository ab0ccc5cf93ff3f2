package proxypool

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// EgressDetector resolves the host's public IP by querying an ordered list of
// IP-echo services and taking the first answer that parses as an address. If
// every service fails it falls back to a configured IP, which may be empty.
type EgressDetector struct {
	echoURLs   []string
	fallbackIP string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewEgressDetector builds a detector over the given echo endpoints.
func NewEgressDetector(echoURLs []string, fallbackIP string, httpClient *http.Client, logger *zap.Logger) *EgressDetector {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EgressDetector{
		echoURLs:   echoURLs,
		fallbackIP: fallbackIP,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Detect returns the first successfully echoed IP, else the fallback.
func (d *EgressDetector) Detect(ctx context.Context) string {
	for _, echoURL := range d.echoURLs {
		ip, err := d.query(ctx, echoURL)
		if err != nil {
			d.logger.Debug("egress echo failed",
				zap.String("service", echoURL),
				zap.Error(err))
			continue
		}
		d.logger.Debug("egress IP detected",
			zap.String("service", echoURL),
			zap.String("ip", ip))
		return ip
	}
	if d.fallbackIP != "" {
		d.logger.Info("egress detection exhausted, using fallback IP",
			zap.String("ip", d.fallbackIP))
	}
	return d.fallbackIP
}

func (d *EgressDetector) query(ctx context.Context, echoURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, echoURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &net.AddrError{Err: "echo status " + resp.Status, Addr: echoURL}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return "", &net.AddrError{Err: "echo returned non-IP", Addr: ip}
	}
	return ip, nil
}
