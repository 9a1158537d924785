package config

import (
	"net/url"

	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
)

// ValidateConfig checks the defaulted configuration for values that cannot be served.
func ValidateConfig(cfg *Config) error {
	if cfg.Project == "" {
		return derrors.ValidationError("project must be set").Build()
	}
	if cfg.API.BaseURL == "" {
		return derrors.ValidationError("api.base_url must be set").Build()
	}
	if err := validateURL("api.base_url", cfg.API.BaseURL, "http", "https"); err != nil {
		return err
	}

	switch cfg.Events.Transport {
	case TransportNATS:
		if cfg.Events.NATSURL == "" {
			return derrors.ValidationError("events.nats_url is required for the nats transport").Build()
		}
	case TransportSSE:
		if err := validateURL("events.url", cfg.Events.URL, "http", "https"); err != nil {
			return err
		}
	case TransportWebSocket:
		if err := validateURL("events.url", cfg.Events.URL, "ws", "wss"); err != nil {
			return err
		}
	case TransportLocal:
	default:
		return derrors.ValidationError("unsupported events.transport").
			WithContext("transport", string(cfg.Events.Transport)).Build()
	}

	if cfg.Retry.Initial > cfg.Retry.Max {
		return derrors.ValidationError("retry.initial_delay must not exceed retry.max_delay").Build()
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return derrors.ValidationError("invalid URL").WithContext("field", field).WithContext("value", raw).Build()
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return derrors.ValidationError("unsupported URL scheme").
		WithContext("field", field).WithContext("scheme", u.Scheme).Build()
}
