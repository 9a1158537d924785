package config

import (
	"strings"
	"time"
)

const (
	defaultPollInterval    = 30 * time.Second
	defaultFreshnessWindow = time.Hour
	defaultRetryInitial    = 500 * time.Millisecond
	defaultRetryMax        = 10 * time.Second
	defaultEventBuffer     = 64
	defaultSubjectPrefix   = "analysis"
	defaultMetricsListen   = ":9464"
)

// applyDefaults fills unset fields. It runs after normalization so canonical values drive defaults.
func applyDefaults(cfg *Config) {
	if cfg.Events.Transport == "" {
		cfg.Events.Transport = TransportSSE
	}
	if cfg.Events.Buffer == 0 {
		cfg.Events.Buffer = defaultEventBuffer
	}
	if cfg.Events.Transport == TransportNATS && cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = defaultSubjectPrefix
	}
	if cfg.Events.URL == "" && cfg.API.BaseURL != "" {
		switch cfg.Events.Transport {
		case TransportSSE:
			cfg.Events.URL = cfg.API.BaseURL + "/api/events"
		case TransportWebSocket:
			cfg.Events.URL = websocketURL(cfg.API.BaseURL) + "/api/events/ws"
		}
	}

	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = Duration(defaultPollInterval)
	}
	if cfg.Refresh.FreshnessWindow <= 0 {
		cfg.Refresh.FreshnessWindow = Duration(defaultFreshnessWindow)
	}
	if cfg.Refresh.Invalidation == "" {
		cfg.Refresh.Invalidation = InvalidateAll
	}

	if cfg.Retry.Backoff == "" {
		cfg.Retry.Backoff = RetryBackoffExponential
	}
	if cfg.Retry.Initial <= 0 {
		cfg.Retry.Initial = Duration(defaultRetryInitial)
	}
	if cfg.Retry.Max <= 0 {
		cfg.Retry.Max = Duration(defaultRetryMax)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = defaultMetricsListen
	}
}

func websocketURL(base string) string {
	if rest, ok := strings.CutPrefix(base, "https://"); ok {
		return "wss://" + rest
	}
	if rest, ok := strings.CutPrefix(base, "http://"); ok {
		return "ws://" + rest
	}
	return base
}
