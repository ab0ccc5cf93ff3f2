package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  enabled: true
  port: 9090
logging:
  development: false
target:
  page_url: "https://market.example.com/search?start={offset}&count={count}"
  probe_url: "https://market.example.com/overview?name={name}"
  total_items: 2500
  page_size: 50
fetch:
  profile: probe
proxy:
  mode: single
  pool_count: 1
  proxies_per_pool: 25
  regions: ["us", "de"]
provisioning:
  endpoint: "https://vendor.example.com/api/proxies"
  token: secret
store:
  backend: local
  local_dir: /tmp/market-data
  tolerance: 0.05
profiles:
  probe:
    timeout_seconds: 7
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Server.Enabled || cfg.Server.Port != 9090 {
		t.Fatalf("expected ops server enabled on 9090, got %+v", cfg.Server)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected production logging")
	}
	if cfg.Target.TotalItems != 2500 || cfg.Target.PageSize != 50 {
		t.Fatalf("expected target overrides to apply, got %+v", cfg.Target)
	}
	if cfg.Proxy.Mode != "single" || cfg.Proxy.ProxiesPerPool != 25 {
		t.Fatalf("expected proxy overrides to apply, got %+v", cfg.Proxy)
	}
	if cfg.Store.Tolerance != 0.05 {
		t.Fatalf("expected tolerance 0.05, got %v", cfg.Store.Tolerance)
	}
	if got := cfg.ActiveProfile().Timeout(); got != 7*time.Second {
		t.Fatalf("expected probe timeout override 7s, got %v", got)
	}
	// Values absent from the file keep their defaults.
	if cfg.Profiles.Probe.MaxAttempts != 3 {
		t.Fatalf("expected probe max_attempts default 3, got %d", cfg.Profiles.Probe.MaxAttempts)
	}
	if cfg.Proxy.DisableThresholdSingle != 5 || cfg.Proxy.DisableThresholdMulti != 10 {
		t.Fatalf("expected disable threshold defaults, got %+v", cfg.Proxy)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("SKINFETCH_PROVISIONING_ENDPOINT", "https://vendor.example.com/api")
	t.Setenv("SKINFETCH_PROVISIONING_TOKEN", "from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Provisioning.Token != "from-env" {
		t.Fatalf("expected token from env, got %q", cfg.Provisioning.Token)
	}
	if cfg.Fetch.Profile != "bulk" {
		t.Fatalf("expected default profile bulk, got %q", cfg.Fetch.Profile)
	}
	if len(cfg.Egress.EchoURLs) == 0 {
		t.Fatalf("expected default egress echo endpoints")
	}
	if cfg.Progress.EveryNth != 25 || cfg.Progress.FirstMilestones != 5 {
		t.Fatalf("expected milestone defaults, got %+v", cfg.Progress)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Enabled: false, Port: 8080},
		Target: TargetConfig{PageSize: 100},
		Fetch:  FetchConfig{Profile: "bulk"},
		Proxy: ProxyConfig{
			Enabled:        true,
			Mode:           "multi",
			PoolCount:      3,
			ProxiesPerPool: 10,
			Regions:        []string{"us"},
		},
		Provisioning: ProvisioningConfig{Endpoint: "https://vendor.example.com", Token: "tok"},
		Store:        StoreConfig{Backend: "local", LocalDir: "data", Tolerance: 0.01},
		Profiles: ProfilesConfig{
			Bulk:  ProfileConfig{MinWorkers: 1, MaxWorkers: 10, TimeoutSeconds: 5},
			Probe: ProfileConfig{MinWorkers: 1, MaxWorkers: 10, TimeoutSeconds: 5},
		},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid profile name",
			cfg: func() Config {
				c := base
				c.Fetch.Profile = "turbo"
				return c
			}(),
			want: "fetch.profile",
		},
		{
			name: "invalid proxy mode",
			cfg: func() Config {
				c := base
				c.Proxy.Mode = "triple"
				return c
			}(),
			want: "proxy.mode",
		},
		{
			name: "missing provisioning token",
			cfg: func() Config {
				c := base
				c.Provisioning.Token = ""
				return c
			}(),
			want: "provisioning.token",
		},
		{
			name: "missing provisioning endpoint",
			cfg: func() Config {
				c := base
				c.Provisioning.Endpoint = ""
				return c
			}(),
			want: "provisioning.endpoint",
		},
		{
			name: "missing pool count in multi mode",
			cfg: func() Config {
				c := base
				c.Proxy.PoolCount = 0
				return c
			}(),
			want: "proxy.pool_count",
		},
		{
			name: "empty regions",
			cfg: func() Config {
				c := base
				c.Proxy.Regions = nil
				return c
			}(),
			want: "proxy.regions",
		},
		{
			name: "unknown store backend",
			cfg: func() Config {
				c := base
				c.Store.Backend = "s3"
				return c
			}(),
			want: "store.backend",
		},
		{
			name: "gcs backend without bucket",
			cfg: func() Config {
				c := base
				c.Store.Backend = "gcs"
				return c
			}(),
			want: "store.gcs_bucket",
		},
		{
			name: "inverted worker bounds",
			cfg: func() Config {
				c := base
				c.Profiles.Bulk.MinWorkers = 20
				return c
			}(),
			want: "worker bounds",
		},
		{
			name: "ops server without port",
			cfg: func() Config {
				c := base
				c.Server.Enabled = true
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
