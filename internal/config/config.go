// Package config loads and validates engine configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Target       TargetConfig       `mapstructure:"target"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	Profiles     ProfilesConfig     `mapstructure:"profiles"`
	Proxy        ProxyConfig        `mapstructure:"proxy"`
	Provisioning ProvisioningConfig `mapstructure:"provisioning"`
	Egress       EgressConfig       `mapstructure:"egress"`
	Store        StoreConfig        `mapstructure:"store"`
	DB           DBConfig           `mapstructure:"db"`
	PubSub       PubSubConfig       `mapstructure:"pubsub"`
	Progress     ProgressConfig     `mapstructure:"progress"`
	Serve        ServeConfig        `mapstructure:"serve"`
}

// ServerConfig controls the embedded ops HTTP server.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TargetConfig describes the remote market API being extracted.
// URL templates carry {offset}, {count} and {name} placeholders.
type TargetConfig struct {
	PageURL    string            `mapstructure:"page_url"`
	ProbeURL   string            `mapstructure:"probe_url"`
	Headers    map[string]string `mapstructure:"headers"`
	TotalItems int               `mapstructure:"total_items"`
	PageSize   int               `mapstructure:"page_size"`
	ProbeLimit int               `mapstructure:"probe_limit"`
}

// FetchConfig governs orchestrator-wide behavior across profiles.
type FetchConfig struct {
	Profile          string `mapstructure:"profile"`
	RebuildThreshold int    `mapstructure:"rebuild_threshold"`
	PenaltyStepMs    int    `mapstructure:"penalty_step_ms"`
	PenaltyCapMs     int    `mapstructure:"penalty_cap_ms"`
}

// ProfilesConfig holds the named fetch profiles.
type ProfilesConfig struct {
	Bulk  ProfileConfig `mapstructure:"bulk"`
	Probe ProfileConfig `mapstructure:"probe"`
}

// ProfileConfig is one named bundle of sizing/timing/retry constants.
// MaxAttempts of zero selects the unbounded retry policy.
type ProfileConfig struct {
	Multiplier     float64 `mapstructure:"multiplier"`
	MemDivisorGB   float64 `mapstructure:"mem_divisor_gb"`
	MemFactorCap   float64 `mapstructure:"mem_factor_cap"`
	MinWorkers     int     `mapstructure:"min_workers"`
	MaxWorkers     int     `mapstructure:"max_workers"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RequestDelayMs int     `mapstructure:"request_delay_ms"`
	RetryBaseMs    int     `mapstructure:"retry_base_ms"`
	RetryMaxMs     int     `mapstructure:"retry_max_ms"`
	MaxAttempts    int     `mapstructure:"max_attempts"`
	BatchSize      int     `mapstructure:"batch_size"`
	ConnsPerHost   int     `mapstructure:"conns_per_host"`
}

// Timeout returns the per-attempt request timeout.
func (p ProfileConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// RequestDelay returns the per-worker pacing interval.
func (p ProfileConfig) RequestDelay() time.Duration {
	return time.Duration(p.RequestDelayMs) * time.Millisecond
}

// RetryBase returns the base retry delay.
func (p ProfileConfig) RetryBase() time.Duration {
	return time.Duration(p.RetryBaseMs) * time.Millisecond
}

// RetryMax returns the retry delay ceiling.
func (p ProfileConfig) RetryMax() time.Duration {
	return time.Duration(p.RetryMaxMs) * time.Millisecond
}

// ProxyConfig governs pool topology and health thresholds.
type ProxyConfig struct {
	Enabled                bool     `mapstructure:"enabled"`
	Mode                   string   `mapstructure:"mode"`
	PoolCount              int      `mapstructure:"pool_count"`
	ProxiesPerPool         int      `mapstructure:"proxies_per_pool"`
	Regions                []string `mapstructure:"regions"`
	Scheme                 string   `mapstructure:"scheme"`
	DisableThresholdSingle int      `mapstructure:"disable_threshold_single"`
	DisableThresholdMulti  int      `mapstructure:"disable_threshold_multi"`
}

// ProvisioningConfig points at the proxy vendor API. Token is expected from
// the environment (SKINFETCH_PROVISIONING_TOKEN), never from a checked-in file.
type ProvisioningConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// EgressConfig controls outbound IP detection for provisioning whitelists.
type EgressConfig struct {
	EchoURLs   []string `mapstructure:"echo_urls"`
	FallbackIP string   `mapstructure:"fallback_ip"`
	Whitelist  []string `mapstructure:"whitelist"`
}

// StoreConfig sets the merge document backend and tolerances.
type StoreConfig struct {
	Backend   string  `mapstructure:"backend"`
	LocalDir  string  `mapstructure:"local_dir"`
	GCSBucket string  `mapstructure:"gcs_bucket"`
	Object    string  `mapstructure:"object"`
	Tolerance float64 `mapstructure:"tolerance"`
	Archive   bool    `mapstructure:"archive"`
}

// DBConfig controls access to the run-history database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for run-completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig tunes milestone reporting and pool scoring.
type ProgressConfig struct {
	FirstMilestones int     `mapstructure:"first_milestones"`
	EveryNth        int     `mapstructure:"every_nth"`
	PenaltyWeight   float64 `mapstructure:"penalty_weight"`
}

// ServeConfig tunes the continuous extraction loop.
type ServeConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
	JitterSeconds   int `mapstructure:"jitter_seconds"`
}

// Interval returns the base pause between extraction cycles.
func (s ServeConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// Jitter returns the maximum random addition to the cycle pause.
func (s ServeConfig) Jitter() time.Duration {
	return time.Duration(s.JitterSeconds) * time.Second
}

// Load builds a Config from disk/environment. An explicit path wins; with an
// empty path the usual search locations are tried and a missing file is fine.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SKINFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("skinfetch")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/skinfetch/")
		v.AddConfigPath("$HOME/.skinfetch")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("logging.development", true)

	v.SetDefault("target.page_url", "")
	v.SetDefault("target.probe_url", "")
	v.SetDefault("target.headers", map[string]string{})
	v.SetDefault("target.total_items", 0)
	v.SetDefault("target.page_size", 100)
	v.SetDefault("target.probe_limit", 500)

	v.SetDefault("fetch.profile", "bulk")
	v.SetDefault("fetch.rebuild_threshold", 25)
	v.SetDefault("fetch.penalty_step_ms", 150)
	v.SetDefault("fetch.penalty_cap_ms", 3000)

	v.SetDefault("profiles.bulk.multiplier", 8)
	v.SetDefault("profiles.bulk.mem_divisor_gb", 2)
	v.SetDefault("profiles.bulk.mem_factor_cap", 4)
	v.SetDefault("profiles.bulk.min_workers", 5)
	v.SetDefault("profiles.bulk.max_workers", 200)
	v.SetDefault("profiles.bulk.timeout_seconds", 30)
	v.SetDefault("profiles.bulk.request_delay_ms", 250)
	v.SetDefault("profiles.bulk.retry_base_ms", 2000)
	v.SetDefault("profiles.bulk.retry_max_ms", 30000)
	v.SetDefault("profiles.bulk.max_attempts", 0)
	v.SetDefault("profiles.bulk.batch_size", 100)
	v.SetDefault("profiles.bulk.conns_per_host", 50)

	v.SetDefault("profiles.probe.multiplier", 3)
	v.SetDefault("profiles.probe.mem_divisor_gb", 4)
	v.SetDefault("profiles.probe.mem_factor_cap", 2)
	v.SetDefault("profiles.probe.min_workers", 2)
	v.SetDefault("profiles.probe.max_workers", 40)
	v.SetDefault("profiles.probe.timeout_seconds", 10)
	v.SetDefault("profiles.probe.request_delay_ms", 500)
	v.SetDefault("profiles.probe.retry_base_ms", 1000)
	v.SetDefault("profiles.probe.retry_max_ms", 10000)
	v.SetDefault("profiles.probe.max_attempts", 3)
	v.SetDefault("profiles.probe.batch_size", 1)
	v.SetDefault("profiles.probe.conns_per_host", 20)

	v.SetDefault("proxy.enabled", true)
	v.SetDefault("proxy.mode", "multi")
	v.SetDefault("proxy.pool_count", 3)
	v.SetDefault("proxy.proxies_per_pool", 10)
	v.SetDefault("proxy.regions", []string{"us", "de", "fr", "gb", "nl", "pl", "es"})
	v.SetDefault("proxy.scheme", "http")
	v.SetDefault("proxy.disable_threshold_single", 5)
	v.SetDefault("proxy.disable_threshold_multi", 10)

	v.SetDefault("provisioning.endpoint", "")
	v.SetDefault("provisioning.token", "")
	v.SetDefault("provisioning.timeout_seconds", 20)

	v.SetDefault("egress.echo_urls", []string{
		"https://api.ipify.org",
		"https://ifconfig.me/ip",
		"https://icanhazip.com",
	})
	v.SetDefault("egress.fallback_ip", "")
	v.SetDefault("egress.whitelist", []string{})

	v.SetDefault("store.backend", "local")
	v.SetDefault("store.local_dir", "data")
	v.SetDefault("store.gcs_bucket", "")
	v.SetDefault("store.object", "items.json")
	v.SetDefault("store.tolerance", 0.01)
	v.SetDefault("store.archive", false)

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")

	v.SetDefault("progress.first_milestones", 5)
	v.SetDefault("progress.every_nth", 25)
	v.SetDefault("progress.penalty_weight", 0.1)

	v.SetDefault("serve.interval_seconds", 300)
	v.SetDefault("serve.jitter_seconds", 60)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the ops server is enabled")
	}
	if c.Fetch.Profile != "bulk" && c.Fetch.Profile != "probe" {
		return fmt.Errorf("fetch.profile must be bulk or probe, got %q", c.Fetch.Profile)
	}
	if c.Target.PageSize <= 0 {
		return fmt.Errorf("target.page_size must be > 0")
	}
	if c.Proxy.Enabled {
		if c.Proxy.Mode != "single" && c.Proxy.Mode != "multi" {
			return fmt.Errorf("proxy.mode must be single or multi, got %q", c.Proxy.Mode)
		}
		if c.Proxy.Mode == "multi" && c.Proxy.PoolCount <= 0 {
			return fmt.Errorf("proxy.pool_count must be > 0 in multi mode")
		}
		if c.Proxy.ProxiesPerPool <= 0 {
			return fmt.Errorf("proxy.proxies_per_pool must be > 0")
		}
		if len(c.Proxy.Regions) == 0 {
			return fmt.Errorf("proxy.regions must not be empty")
		}
		if c.Provisioning.Endpoint == "" {
			return fmt.Errorf("provisioning.endpoint is required when proxies are enabled")
		}
		if c.Provisioning.Token == "" {
			return fmt.Errorf("provisioning.token is required when proxies are enabled")
		}
	}
	switch c.Store.Backend {
	case "local":
		if c.Store.LocalDir == "" {
			return fmt.Errorf("store.local_dir is required for the local backend")
		}
	case "gcs":
		if c.Store.GCSBucket == "" {
			return fmt.Errorf("store.gcs_bucket is required for the gcs backend")
		}
	case "memory", "noop":
	default:
		return fmt.Errorf("store.backend must be local, gcs, memory or noop, got %q", c.Store.Backend)
	}
	if c.Store.Tolerance < 0 {
		return fmt.Errorf("store.tolerance must be >= 0")
	}
	for name, p := range map[string]ProfileConfig{"bulk": c.Profiles.Bulk, "probe": c.Profiles.Probe} {
		if p.MaxWorkers <= 0 || p.MinWorkers <= 0 || p.MinWorkers > p.MaxWorkers {
			return fmt.Errorf("profiles.%s worker bounds invalid: min=%d max=%d", name, p.MinWorkers, p.MaxWorkers)
		}
		if p.TimeoutSeconds <= 0 {
			return fmt.Errorf("profiles.%s.timeout_seconds must be > 0", name)
		}
	}
	return nil
}

// ActiveProfile returns the profile selected by fetch.profile.
func (c Config) ActiveProfile() ProfileConfig {
	if c.Fetch.Profile == "probe" {
		return c.Profiles.Probe
	}
	return c.Profiles.Bulk
}
