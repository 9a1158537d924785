package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
)

// CurrentVersion is the only configuration format version accepted by Load.
const CurrentVersion = "1.0"

// Config is the analysisview configuration file.
type Config struct {
	Version string        `yaml:"version"`
	Project string        `yaml:"project"`
	API     APIConfig     `yaml:"api"`
	Events  EventsConfig  `yaml:"events"`
	Poll    PollConfig    `yaml:"poll"`
	Refresh RefreshConfig `yaml:"refresh"`
	Retry   RetryConfig   `yaml:"retry"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// APIConfig describes the remote analysis service.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token,omitempty"`
	// Fast requests the lower-latency variant of read endpoints.
	Fast bool `yaml:"fast"`
}

// EventsConfig describes the push channel.
type EventsConfig struct {
	Transport     EventTransport `yaml:"transport"`
	URL           string         `yaml:"url,omitempty"`      // SSE or WebSocket endpoint; defaults from api.base_url
	NATSURL       string         `yaml:"nats_url,omitempty"` // NATS server URL
	SubjectPrefix string         `yaml:"subject_prefix,omitempty"`
	Buffer        int            `yaml:"buffer"`
}

// PollConfig describes the fallback status poll.
type PollConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
}

// RefreshConfig holds freshness and invalidation behaviour.
type RefreshConfig struct {
	FreshnessWindow Duration           `yaml:"freshness_window"`
	Invalidation    InvalidationPolicy `yaml:"invalidation"`
	CancelRemote    *bool              `yaml:"cancel_remote,omitempty"`
}

// RemoteCancel reports whether cancelling a job also calls the remote cancel endpoint.
func (r RefreshConfig) RemoteCancel() bool {
	return r.CancelRemote == nil || *r.CancelRemote
}

// RetryConfig configures retries of transient repository failures.
type RetryConfig struct {
	MaxRetries int              `yaml:"max_retries"`
	Backoff    RetryBackoffMode `yaml:"backoff"`
	Initial    Duration         `yaml:"initial_delay"`
	Max        Duration         `yaml:"max_delay"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// MetricsConfig configures the Prometheus/status listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load reads, expands, normalizes, defaults and validates a configuration file.
// A .env or .env.local file next to the config (or in the working directory) is loaded first.
func Load(configPath string) (*Config, error) {
	for _, dir := range []string{filepath.Dir(configPath), ""} {
		if path, err := loadEnvFile(dir); err == nil {
			slog.Debug("Loaded environment variables", "path", path)
			break
		} else if !os.IsNotExist(err) {
			return nil, derrors.WrapError(err, derrors.CategoryConfig, "failed to load env file").Build()
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, derrors.ConfigError("configuration file not found").
				WithContext("path", configPath).Build()
		}
		return nil, derrors.WrapError(err, derrors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).Build()
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML, expanding ${VAR} references from the environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryConfig, "failed to unmarshal config").Build()
	}
	if cfg.Version != CurrentVersion {
		return nil, derrors.ConfigError(fmt.Sprintf("unsupported configuration version: %q (expected %s)", cfg.Version, CurrentVersion)).Build()
	}

	res := NormalizeConfig(&cfg)
	for _, w := range res.Warnings {
		slog.Warn("config normalization", "warning", w)
	}
	applyDefaults(&cfg)

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no project set.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	applyDefaults(cfg)
	return cfg
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return derrors.AlreadyExistsError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).Build()
	}

	cancelRemote := true
	example := Config{
		Version: CurrentVersion,
		Project: "${ANALYSISVIEW_PROJECT}",
		API: APIConfig{
			BaseURL: "https://analysis.example.com",
			Token:   "${ANALYSISVIEW_TOKEN}",
		},
		Events: EventsConfig{
			Transport: TransportSSE,
			Buffer:    64,
		},
		Poll: PollConfig{Enabled: true, Interval: Duration(defaultPollInterval)},
		Refresh: RefreshConfig{
			FreshnessWindow: Duration(defaultFreshnessWindow),
			Invalidation:    InvalidateAll,
			CancelRemote:    &cancelRemote,
		},
		Retry: RetryConfig{
			MaxRetries: 2,
			Backoff:    RetryBackoffExponential,
			Initial:    Duration(defaultRetryInitial),
			Max:        Duration(defaultRetryMax),
		},
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
		Metrics: MetricsConfig{Enabled: false, Listen: defaultMetricsListen},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryInternal, "failed to marshal example config").Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return derrors.WrapError(err, derrors.CategoryRuntime, "failed to write config file").
			WithContext("path", configPath).Build()
	}
	return nil
}
