package config

import (
	"fmt"
	"strings"
)

// NormalizationResult captures adjustments and warnings from the normalization pass.
type NormalizationResult struct{ Warnings []string }

// NormalizeConfig canonicalizes enumerated and bounded fields prior to default application.
// Unknown enum values are reset to empty so defaults apply, with a warning.
func NormalizeConfig(c *Config) *NormalizationResult {
	res := &NormalizationResult{}
	if c == nil {
		return res
	}
	c.Project = strings.TrimSpace(c.Project)
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")

	if raw := strings.TrimSpace(string(c.Events.Transport)); raw != "" {
		if v, err := transportNormalizer.Parse(raw); err != nil {
			res.Warnings = append(res.Warnings, warnUnknown("events.transport", raw, string(TransportSSE)))
			c.Events.Transport = ""
		} else {
			c.Events.Transport = normalizeChanged(res, "events.transport", c.Events.Transport, v)
		}
	}
	if raw := strings.TrimSpace(string(c.Refresh.Invalidation)); raw != "" {
		if v, err := invalidationNormalizer.Parse(raw); err != nil {
			res.Warnings = append(res.Warnings, warnUnknown("refresh.invalidation", raw, string(InvalidateAll)))
			c.Refresh.Invalidation = ""
		} else {
			c.Refresh.Invalidation = normalizeChanged(res, "refresh.invalidation", c.Refresh.Invalidation, v)
		}
	}
	if raw := strings.TrimSpace(string(c.Retry.Backoff)); raw != "" {
		if v := NormalizeRetryBackoff(raw); v == "" {
			res.Warnings = append(res.Warnings, warnUnknown("retry.backoff", raw, string(RetryBackoffExponential)))
			c.Retry.Backoff = ""
		} else {
			c.Retry.Backoff = normalizeChanged(res, "retry.backoff", c.Retry.Backoff, v)
		}
	}
	if raw := strings.TrimSpace(string(c.Logging.Level)); raw != "" {
		if _, err := logLevelNormalizer.Parse(raw); err != nil {
			res.Warnings = append(res.Warnings, warnUnknown("logging.level", raw, string(LogLevelInfo)))
		}
		c.Logging.Level = normalizeChanged(res, "logging.level", c.Logging.Level, NormalizeLogLevel(raw))
	}
	if raw := strings.TrimSpace(string(c.Logging.Format)); raw != "" {
		if _, err := logFormatNormalizer.Parse(raw); err != nil {
			res.Warnings = append(res.Warnings, warnUnknown("logging.format", raw, string(LogFormatText)))
		}
		c.Logging.Format = normalizeChanged(res, "logging.format", c.Logging.Format, NormalizeLogFormat(raw))
	}

	if c.Retry.MaxRetries < 0 {
		res.Warnings = append(res.Warnings, warnChanged("retry.max_retries", c.Retry.MaxRetries, 0))
		c.Retry.MaxRetries = 0
	}
	if c.Events.Buffer < 0 {
		c.Events.Buffer = 0
	}
	return res
}

func normalizeChanged[T ~string](res *NormalizationResult, field string, from, to T) T {
	if from != to {
		res.Warnings = append(res.Warnings, warnChanged(field, from, to))
	}
	return to
}

func warnChanged(field string, from, to any) string {
	return fmt.Sprintf("normalized %s from '%v' to '%v'", field, from, to)
}

func warnUnknown(field, value, def string) string {
	return fmt.Sprintf("unknown %s '%s', defaulting to %s", field, value, def)
}
