package proxypool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// VendorConfig points the client at the proxy vendor API.
type VendorConfig struct {
	Endpoint string
	Token    string
	// Scheme is applied to returned credentials (usually "http").
	Scheme string
}

// VendorClient provisions proxy credentials from the vendor API. Responses
// arrive in several shapes depending on the vendor's mood (wrapped object,
// bare list, newline-delimited text); the client normalizes all of them into
// Credentials and rejects anything else as a provisioning failure.
type VendorClient struct {
	cfg        VendorConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewVendorClient builds a client. A missing endpoint or token is a
// configuration error: the engine refuses to start rather than silently run
// proxy-less.
func NewVendorClient(cfg VendorConfig, httpClient *http.Client, logger *zap.Logger) (*VendorClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("proxypool: vendor endpoint is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("proxypool: vendor token is required")
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VendorClient{cfg: cfg, httpClient: httpClient, logger: logger}, nil
}

// Provision requests count credentials for region. Zero credentials with a
// nil error is a valid vendor answer; the caller marks the pool inactive.
func (c *VendorClient) Provision(ctx context.Context, region string, count int, whitelist []string) ([]Credential, error) {
	form := url.Values{}
	form.Set("country", region)
	form.Set("number", strconv.Itoa(count))
	if len(whitelist) > 0 {
		form.Set("whitelist_ip", strings.Join(whitelist, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrProvisioning, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Token "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProvisioning, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: vendor returned status %d", ErrProvisioning, resp.StatusCode)
	}

	creds, err := c.normalize(body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("provisioned credentials",
		zap.String("region", region),
		zap.Int("requested", count),
		zap.Int("received", len(creds)))
	return creds, nil
}

// vendorEntry is the structured element shape some vendor endpoints return.
type vendorEntry struct {
	Host     string      `json:"host"`
	Port     json.Number `json:"port"`
	Username string      `json:"username"`
	Password string      `json:"password"`
}

// normalize is the tagged decode step: it inspects the payload shape and
// routes it to the matching decoder. Accepted shapes:
//
//	{"proxies": [ ... ]}          wrapped object
//	[ ... ]                       bare list
//	"h:p:u:w\nh:p:u:w"            JSON string of tuples
//	h:p:u:w<newline>...           plain text tuples
//
// List elements are either structured entries or "host:port:user:pass"
// strings. Anything else is a provisioning failure.
func (c *VendorClient) normalize(body []byte) ([]Credential, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, nil
	}

	switch trimmed[0] {
	case '{':
		var wrapped struct {
			Proxies []json.RawMessage `json:"proxies"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapped); err != nil {
			return nil, fmt.Errorf("%w: decode object payload: %v", ErrProvisioning, err)
		}
		if wrapped.Proxies == nil {
			return nil, fmt.Errorf("%w: object payload missing proxies field", ErrProvisioning)
		}
		return c.decodeList(wrapped.Proxies)
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return nil, fmt.Errorf("%w: decode list payload: %v", ErrProvisioning, err)
		}
		return c.decodeList(list)
	case '"':
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err != nil {
			return nil, fmt.Errorf("%w: decode string payload: %v", ErrProvisioning, err)
		}
		return c.decodeLines(s)
	default:
		// Plain text, one host:port:user:pass tuple per line.
		return c.decodeLines(trimmed)
	}
}

func (c *VendorClient) decodeList(items []json.RawMessage) ([]Credential, error) {
	creds := make([]Credential, 0, len(items))
	for i, raw := range items {
		text := strings.TrimSpace(string(raw))
		if text == "" {
			continue
		}
		if text[0] == '"' {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("%w: element %d: %v", ErrProvisioning, i, err)
			}
			cred, err := c.credentialFromTuple(s)
			if err != nil {
				return nil, fmt.Errorf("%w: element %d: %v", ErrProvisioning, i, err)
			}
			creds = append(creds, cred)
			continue
		}
		var entry vendorEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrProvisioning, i, err)
		}
		cred, err := c.credentialFromEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrProvisioning, i, err)
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

func (c *VendorClient) decodeLines(text string) ([]Credential, error) {
	lines := strings.Split(text, "\n")
	creds := make([]Credential, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cred, err := c.credentialFromTuple(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProvisioning, err)
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

// credentialFromTuple parses "host:port:user:pass".
func (c *VendorClient) credentialFromTuple(tuple string) (Credential, error) {
	parts := strings.Split(tuple, ":")
	if len(parts) != 4 {
		return "", fmt.Errorf("malformed proxy tuple %q", tuple)
	}
	return c.credential(parts[0], parts[1], parts[2], parts[3])
}

func (c *VendorClient) credentialFromEntry(entry vendorEntry) (Credential, error) {
	return c.credential(entry.Host, entry.Port.String(), entry.Username, entry.Password)
}

func (c *VendorClient) credential(host, port, user, pass string) (Credential, error) {
	if host == "" {
		return "", fmt.Errorf("proxy entry missing host")
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("proxy entry has invalid port %q", port)
	}
	u := url.URL{
		Scheme: c.cfg.Scheme,
		User:   url.UserPassword(user, pass),
		Host:   host + ":" + port,
	}
	return Credential(u.String()), nil
}
