// Package config loads the agent's flat, uppercase-keyed configuration
// surface: provider credentials, the at-rest encryption master key, HTTP
// listen settings, poll intervals, and per-back-end enable flags and
// endpoints. Any key suffixed `_ENV` or `_FILE` resolves indirectly to an
// environment variable or a file on disk rather than carrying the secret
// literally in the config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so poll intervals can be written as plain
// strings ("30s", "5m") in the TOML file.
type Duration struct {
	time.Duration
}

// UnmarshalText parses human readable duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Intervals groups the loop periods every periodic component reads.
type Intervals struct {
	Discovery Duration `toml:"DISCOVERY_INTERVAL"`
	Executor  Duration `toml:"EXECUTOR_INTERVAL"`
	Balances  Duration `toml:"BALANCES_INTERVAL"`
	Scheduler Duration `toml:"SCHEDULER_INTERVAL"`
	Oracle    Duration `toml:"ORACLE_INTERVAL"`
	Advisor   Duration `toml:"ADVISOR_INTERVAL"`
}

// BackendConfig is the flat enable/endpoint/asset shape shared by every
// back-end capability (order book, payment rail, state channel, policy
// resolver). Unused fields are simply left zero for back-ends that don't
// need them.
type BackendConfig struct {
	Enabled  bool     `toml:"ENABLED"`
	Endpoint string   `toml:"ENDPOINT"`
	Assets   []string `toml:"ASSETS"`

	APIKeyEnv    string `toml:"API_KEY_ENV"`
	APIKeyFile   string `toml:"API_KEY_FILE"`
	apiKey       string
}

// APIKey returns the resolved credential, following the _ENV/_FILE
// indirection convention.
func (b BackendConfig) APIKey() string { return b.apiKey }

func (b *BackendConfig) resolveSecret(field string) error {
	switch {
	case b.APIKeyEnv != "":
		value := strings.TrimSpace(os.Getenv(b.APIKeyEnv))
		if value == "" {
			return fmt.Errorf("%s: API_KEY_ENV %s is empty", field, b.APIKeyEnv)
		}
		b.apiKey = value
	case b.APIKeyFile != "":
		contents, err := os.ReadFile(b.APIKeyFile)
		if err != nil {
			return fmt.Errorf("%s: read API_KEY_FILE: %w", field, err)
		}
		b.apiKey = strings.TrimSpace(string(contents))
	}
	return nil
}

// TrackedDocument seeds one document row at start-up; Document Sync only
// ever scans documents the Store already knows about.
type TrackedDocument struct {
	DocID       string `toml:"DOC_ID"`
	DisplayName string `toml:"DISPLAY_NAME"`
}

// Config is the full agent configuration surface.
type Config struct {
	Environment   string `toml:"ENVIRONMENT"`
	HTTPPort      int    `toml:"HTTP_PORT"`
	PublicBaseURL string `toml:"PUBLIC_BASE_URL"`

	TrackedDocuments []TrackedDocument `toml:"TRACKED_DOCUMENTS"`

	MasterKeyEnv  string `toml:"MASTER_KEY_ENV"`
	MasterKeyFile string `toml:"MASTER_KEY_FILE"`
	masterKey     string

	JWTSecretEnv  string `toml:"JWT_SECRET_ENV"`
	JWTSecretFile string `toml:"JWT_SECRET_FILE"`
	jwtSecret     string

	DatabaseDSN string `toml:"DATABASE_DSN"`

	Intervals Intervals `toml:"INTERVALS"`

	LogFilePath   string `toml:"LOG_FILE_PATH"`
	LogMaxSizeMB  int    `toml:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `toml:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `toml:"LOG_MAX_AGE_DAYS"`

	OtelEndpoint string `toml:"OTEL_ENDPOINT"`
	OtelInsecure bool   `toml:"OTEL_INSECURE"`
	OtelHeaders  string `toml:"OTEL_HEADERS"`
	OtelMetrics  bool   `toml:"OTEL_METRICS"`
	OtelTraces   bool   `toml:"OTEL_TRACES"`

	OrderBook    BackendConfig `toml:"ORDERBOOK"`
	NativeRail   BackendConfig `toml:"NATIVE_RAIL"`
	ManagedRail  BackendConfig `toml:"MANAGED_RAIL"`
	StateChannel BackendConfig `toml:"STATE_CHANNEL"`
	PolicyDNS    BackendConfig `toml:"POLICY_DNS"`
	DocProvider  BackendConfig `toml:"DOC_PROVIDER"`

	CORSAllowedOrigins []string `toml:"CORS_ALLOWED_ORIGINS"`

	MetricsAuthEnabled    bool   `toml:"METRICS_AUTH_ENABLED"`
	MetricsAuthSecretEnv  string `toml:"METRICS_AUTH_SECRET_ENV"`
	MetricsAuthSecretFile string `toml:"METRICS_AUTH_SECRET_FILE"`
	metricsAuthSecret     string
}

// MasterKey returns the resolved at-rest encryption key.
func (c Config) MasterKey() string { return c.masterKey }

// JWTSecret returns the resolved session-cookie signing key.
func (c Config) JWTSecret() string { return c.jwtSecret }

// MetricsAuthSecret returns the resolved bearer-token secret gating the
// Prometheus scrape endpoint, empty when METRICS_AUTH_ENABLED is false.
func (c Config) MetricsAuthSecret() string { return c.metricsAuthSecret }

// Load reads path, decoding unrecognised keys silently (TOML's default),
// applies defaults, resolves every _ENV/_FILE secret indirection, and
// validates that required keys are present for every enabled back-end.
func Load(path string) (Config, error) {
	cfg := Config{}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.resolveSecrets(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "production"
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8090
	}
	if cfg.Intervals.Discovery.Duration == 0 {
		cfg.Intervals.Discovery.Duration = 30 * time.Second
	}
	if cfg.Intervals.Executor.Duration == 0 {
		cfg.Intervals.Executor.Duration = 5 * time.Second
	}
	if cfg.Intervals.Balances.Duration == 0 {
		cfg.Intervals.Balances.Duration = 60 * time.Second
	}
	if cfg.Intervals.Scheduler.Duration == 0 {
		cfg.Intervals.Scheduler.Duration = time.Minute
	}
	if cfg.Intervals.Oracle.Duration == 0 {
		cfg.Intervals.Oracle.Duration = 15 * time.Second
	}
	if cfg.Intervals.Advisor.Duration == 0 {
		cfg.Intervals.Advisor.Duration = 10 * time.Minute
	}
}

func (cfg *Config) resolveSecrets() error {
	switch {
	case cfg.MasterKeyEnv != "":
		value := strings.TrimSpace(os.Getenv(cfg.MasterKeyEnv))
		if value == "" {
			return fmt.Errorf("MASTER_KEY_ENV %s is empty", cfg.MasterKeyEnv)
		}
		cfg.masterKey = value
	case cfg.MasterKeyFile != "":
		contents, err := os.ReadFile(cfg.MasterKeyFile)
		if err != nil {
			return fmt.Errorf("read MASTER_KEY_FILE: %w", err)
		}
		cfg.masterKey = strings.TrimSpace(string(contents))
	default:
		return fmt.Errorf("MASTER_KEY_ENV or MASTER_KEY_FILE is required")
	}
	switch {
	case cfg.JWTSecretEnv != "":
		value := strings.TrimSpace(os.Getenv(cfg.JWTSecretEnv))
		if value == "" {
			return fmt.Errorf("JWT_SECRET_ENV %s is empty", cfg.JWTSecretEnv)
		}
		cfg.jwtSecret = value
	case cfg.JWTSecretFile != "":
		contents, err := os.ReadFile(cfg.JWTSecretFile)
		if err != nil {
			return fmt.Errorf("read JWT_SECRET_FILE: %w", err)
		}
		cfg.jwtSecret = strings.TrimSpace(string(contents))
	default:
		return fmt.Errorf("JWT_SECRET_ENV or JWT_SECRET_FILE is required")
	}
	if cfg.MetricsAuthEnabled {
		switch {
		case cfg.MetricsAuthSecretEnv != "":
			value := strings.TrimSpace(os.Getenv(cfg.MetricsAuthSecretEnv))
			if value == "" {
				return fmt.Errorf("METRICS_AUTH_SECRET_ENV %s is empty", cfg.MetricsAuthSecretEnv)
			}
			cfg.metricsAuthSecret = value
		case cfg.MetricsAuthSecretFile != "":
			contents, err := os.ReadFile(cfg.MetricsAuthSecretFile)
			if err != nil {
				return fmt.Errorf("read METRICS_AUTH_SECRET_FILE: %w", err)
			}
			cfg.metricsAuthSecret = strings.TrimSpace(string(contents))
		default:
			return fmt.Errorf("METRICS_AUTH_SECRET_ENV or METRICS_AUTH_SECRET_FILE is required when METRICS_AUTH_ENABLED is true")
		}
	}
	backends := map[string]*BackendConfig{
		"ORDERBOOK":     &cfg.OrderBook,
		"NATIVE_RAIL":   &cfg.NativeRail,
		"MANAGED_RAIL":  &cfg.ManagedRail,
		"STATE_CHANNEL": &cfg.StateChannel,
		"POLICY_DNS":    &cfg.PolicyDNS,
		"DOC_PROVIDER":  &cfg.DocProvider,
	}
	for name, b := range backends {
		if err := b.resolveSecret(name); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *Config) validate() error {
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return fmt.Errorf("DATABASE_DSN must be configured")
	}
	required := map[string]BackendConfig{
		"ORDERBOOK":     cfg.OrderBook,
		"NATIVE_RAIL":   cfg.NativeRail,
		"MANAGED_RAIL":  cfg.ManagedRail,
		"STATE_CHANNEL": cfg.StateChannel,
		"POLICY_DNS":    cfg.PolicyDNS,
		"DOC_PROVIDER":  cfg.DocProvider,
	}
	for name, b := range required {
		if !b.Enabled {
			continue
		}
		if strings.TrimSpace(b.Endpoint) == "" {
			return fmt.Errorf("%s.ENDPOINT must be configured when %s.ENABLED is true", name, name)
		}
	}
	return nil
}

// EnvOverrideInt reads an environment variable as an int, falling back to
// the config-file value when unset or unparsable. Some deployments pin the
// HTTP port via the process environment rather than the config file.
func EnvOverrideInt(envKey string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(envKey))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
