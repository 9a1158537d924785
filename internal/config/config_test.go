package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
)

const minimalConfig = `version: "1.0"
project: proj-1
api:
  base_url: https://analysis.example.com/
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "proj-1", cfg.Project)
	assert.Equal(t, "https://analysis.example.com", cfg.API.BaseURL)
	assert.Equal(t, TransportSSE, cfg.Events.Transport)
	assert.Equal(t, "https://analysis.example.com/api/events", cfg.Events.URL)
	assert.Equal(t, 30*time.Second, cfg.Poll.Interval.Duration())
	assert.Equal(t, time.Hour, cfg.Refresh.FreshnessWindow.Duration())
	assert.Equal(t, InvalidateAll, cfg.Refresh.Invalidation)
	assert.True(t, cfg.Refresh.RemoteCancel())
	assert.Equal(t, RetryBackoffExponential, cfg.Retry.Backoff)
	assert.Equal(t, LogLevelInfo, cfg.Logging.Level)
	assert.Equal(t, LogFormatText, cfg.Logging.Format)
	assert.Equal(t, ":9464", cfg.Metrics.Listen)
}

func TestParseNormalizesEnums(t *testing.T) {
	raw := minimalConfig + `events:
  transport: WS
refresh:
  invalidation: " Category "
  cancel_remote: false
  freshness_window: 90m
retry:
  backoff: LINEAR
  initial_delay: 1s
  max_delay: 5
logging:
  level: WARNING
  format: JSON
`
	cfg, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, TransportWebSocket, cfg.Events.Transport)
	assert.Equal(t, "wss://analysis.example.com/api/events/ws", cfg.Events.URL)
	assert.Equal(t, InvalidateCategory, cfg.Refresh.Invalidation)
	assert.False(t, cfg.Refresh.RemoteCancel())
	assert.Equal(t, 90*time.Minute, cfg.Refresh.FreshnessWindow.Duration())
	assert.Equal(t, RetryBackoffLinear, cfg.Retry.Backoff)
	assert.Equal(t, 5*time.Second, cfg.Retry.Max.Duration())
	assert.Equal(t, LogLevelWarn, cfg.Logging.Level)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)
}

func TestNormalizeConfigWarnsOnUnknownValues(t *testing.T) {
	cfg := &Config{
		Events:  EventsConfig{Transport: "carrier-pigeon"},
		Refresh: RefreshConfig{Invalidation: "some"},
		Retry:   RetryConfig{Backoff: "random", MaxRetries: -3},
	}
	res := NormalizeConfig(cfg)

	assert.Len(t, res.Warnings, 4)
	assert.Empty(t, cfg.Events.Transport)
	assert.Empty(t, cfg.Refresh.Invalidation)
	assert.Empty(t, cfg.Retry.Backoff)
	assert.Zero(t, cfg.Retry.MaxRetries)
}

func TestParseExpandsEnvironment(t *testing.T) {
	t.Setenv("AV_TEST_PROJECT", "from-env")
	t.Setenv("AV_TEST_TOKEN", "secret")

	cfg, err := Parse([]byte(`version: "1.0"
project: ${AV_TEST_PROJECT}
api:
  base_url: http://localhost:8080
  token: ${AV_TEST_TOKEN}
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Project)
	assert.Equal(t, "secret", cfg.API.Token)
}

func TestParseRejectsInvalidConfigs(t *testing.T) {
	cases := map[string]string{
		"wrong version":   "version: \"2.0\"\nproject: p\napi:\n  base_url: http://x\n",
		"missing project": "version: \"1.0\"\napi:\n  base_url: http://x\n",
		"missing api":     "version: \"1.0\"\nproject: p\n",
		"bad scheme":      "version: \"1.0\"\nproject: p\napi:\n  base_url: ftp://x\n",
		"nats no url":     minimalConfig + "events:\n  transport: nats\n",
		"retry inverted":  minimalConfig + "retry:\n  initial_delay: 10s\n  max_delay: 1s\n",
		"bad duration":    minimalConfig + "poll:\n  interval: soon\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestValidationErrorsAreClassified(t *testing.T) {
	_, err := Parse([]byte("version: \"1.0\"\napi:\n  base_url: http://x\n"))
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryValidation))
}

func TestNATSDefaultsSubjectPrefix(t *testing.T) {
	cfg, err := Parse([]byte(minimalConfig + "events:\n  transport: nats\n  nats_url: nats://localhost:4222\n"))
	require.NoError(t, err)
	assert.Equal(t, "analysis", cfg.Events.SubjectPrefix)
	assert.Empty(t, cfg.Events.URL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryConfig))
}

func TestLoadReadsDotEnvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AV_DOTENV_PROJECT=dotenv-project\n"), 0o600))
	path := filepath.Join(dir, "analysisview.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1.0\"\nproject: ${AV_DOTENV_PROJECT}\napi:\n  base_url: http://x\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("AV_DOTENV_PROJECT") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-project", cfg.Project)
}

func TestInitWritesLoadableExample(t *testing.T) {
	t.Setenv("ANALYSISVIEW_PROJECT", "example")
	path := filepath.Join(t.TempDir(), "analysisview.yaml")

	require.NoError(t, Init(path, false))

	err := Init(path, false)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryAlreadyExists))
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "example", cfg.Project)
	assert.True(t, cfg.Poll.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Poll.Interval.Duration())
}
