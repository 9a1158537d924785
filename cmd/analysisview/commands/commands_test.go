package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
	"git.home.luguber.info/inful/analysisview/internal/config"
	"git.home.luguber.info/inful/analysisview/internal/events"
	"git.home.luguber.info/inful/analysisview/internal/events/ssechan"
	"git.home.luguber.info/inful/analysisview/internal/events/wschan"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
	"git.home.luguber.info/inful/analysisview/internal/retry"
)

// fakeAPI serves the analysis endpoints with canned bodies and records POSTs.
type fakeAPI struct {
	mu      sync.Mutex
	history string
	posts   []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Method == http.MethodPost {
		f.posts = append(f.posts, r.URL.Path)
		_, _ = io.WriteString(w, `{"success":true,"data":{"id":"job-1"}}`)
		return
	}
	switch {
	case strings.HasSuffix(r.URL.Path, "/history"):
		_, _ = io.WriteString(w, f.history)
	case strings.HasSuffix(r.URL.Path, "/issues"):
		_, _ = io.WriteString(w, `{"data":{"security":{"issues":[{"id":1,"title":"Weak hash"}]}}}`)
	case strings.Contains(r.URL.Path, "/charts/"):
		_, _ = io.WriteString(w, `{"data":{"points":[1,2,3]}}`)
	default:
		_, _ = io.WriteString(w, `{"data":{}}`)
	}
}

func (f *fakeAPI) postPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.posts...)
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.Project = "p1"
	cfg.API.BaseURL = baseURL
	cfg.Events.Transport = config.TransportLocal
	cfg.Retry.MaxRetries = 0
	return cfg
}

func newTestRuntime(t *testing.T, api *fakeAPI) *runtime {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	rt, err := buildRuntime(testConfig(srv.URL), false, false)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

func TestRunInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysisview.yaml")
	var out bytes.Buffer

	require.NoError(t, RunInit(&out, path, false))
	assert.Contains(t, out.String(), path)

	err := RunInit(&out, path, false)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryAlreadyExists))

	require.NoError(t, RunInit(&out, path, true))
}

func TestNewChannelSelectsTransport(t *testing.T) {
	policy := retry.DefaultPolicy()

	cfg := testConfig("http://localhost:8080")
	cfg.Events.Transport = config.TransportSSE
	cfg.Events.URL = "http://localhost:8080/api/events"
	ch, closeFn, err := NewChannel(cfg, policy, nil)
	require.NoError(t, err)
	assert.IsType(t, &ssechan.Channel{}, ch)
	assert.Nil(t, closeFn)

	cfg.Events.Transport = config.TransportWebSocket
	cfg.Events.URL = "ws://localhost:8080/api/events/ws"
	ch, _, err = NewChannel(cfg, policy, nil)
	require.NoError(t, err)
	assert.IsType(t, &wschan.Channel{}, ch)

	cfg.Events.Transport = config.TransportLocal
	ch, _, err = NewChannel(cfg, policy, nil)
	require.NoError(t, err)
	assert.IsType(t, &events.LocalChannel{}, ch)

	cfg.Events.Transport = config.TransportNATS
	cfg.Events.NATSURL = "nats://127.0.0.1:1"
	_, _, err = NewChannel(cfg, policy, nil)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryNetwork))

	cfg.Events.Transport = "carrier-pigeon"
	_, _, err = NewChannel(cfg, policy, nil)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryConfig))
}

func TestParseType(t *testing.T) {
	got, err := parseType("Tech_Stack")
	require.NoError(t, err)
	assert.Equal(t, analysis.TypeTechStack, got)

	_, err = parseType("astrology")
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryValidation))
}

func TestRunSnapshotPrintsView(t *testing.T) {
	rt := newTestRuntime(t, &fakeAPI{history: `{"data":{"history":[]}}`})
	var out bytes.Buffer

	require.NoError(t, RunSnapshot(t.Context(), rt.orch, []string{"security"}, []string{"trend"}, &out))

	var doc struct {
		Project  string `json:"project"`
		Sections map[string]struct {
			Expanded bool `json:"expanded"`
			Loaded   bool `json:"loaded"`
		} `json:"sections"`
		Charts map[string]json.RawMessage `json:"charts"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, "p1", doc.Project)
	assert.True(t, doc.Sections["security"].Expanded)
	assert.True(t, doc.Sections["security"].Loaded)
	assert.False(t, doc.Sections["architecture"].Expanded)
	assert.Contains(t, doc.Charts, "trend")
}

func TestRunSnapshotRejectsUnknownCategory(t *testing.T) {
	rt := newTestRuntime(t, &fakeAPI{history: `{}`})
	err := RunSnapshot(t.Context(), rt.orch, []string{"astrology"}, nil, io.Discard)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryValidation))
}

func TestRunStartNeedsConfirmationWithRecentData(t *testing.T) {
	recent := `{"data":{"history":[{"timestamp":"` + time.Now().UTC().Format(time.RFC3339) + `"}]}}`
	api := &fakeAPI{history: recent}
	rt := newTestRuntime(t, api)
	require.NoError(t, rt.load(t.Context()))

	err := RunStart(t.Context(), rt.orch, "security", false, io.Discard)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryConfirmation))
	assert.Empty(t, api.postPaths())

	var out bytes.Buffer
	require.NoError(t, RunStart(t.Context(), rt.orch, "security", true, &out))
	assert.Equal(t, "Started Security analysis (job job-1)\n", out.String())
	assert.Equal(t, []string{"/api/projects/p1/analysis/start"}, api.postPaths())
}

func TestRunCancelAndRetry(t *testing.T) {
	api := &fakeAPI{history: `{}`}
	rt := newTestRuntime(t, api)
	require.NoError(t, rt.load(t.Context()))

	var out bytes.Buffer
	require.NoError(t, RunCancel(t.Context(), rt.orch, "security", &out))
	assert.Equal(t, "No tracked Security analysis\n", out.String())

	require.NoError(t, RunStart(t.Context(), rt.orch, "security", false, io.Discard))
	out.Reset()
	require.NoError(t, RunCancel(t.Context(), rt.orch, "security", &out))
	assert.Equal(t, "Cancelled Security analysis\n", out.String())
	assert.Contains(t, api.postPaths(), "/api/projects/p1/analysis/steps/job-1/cancel")

	out.Reset()
	require.NoError(t, RunRetry(t.Context(), rt.orch, "security", &out))
	assert.Equal(t, "Retrying Security analysis\n", out.String())
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", slogLevel(config.LogLevelDebug).String())
	assert.Equal(t, "WARN", slogLevel(config.LogLevelWarn).String())
	assert.Equal(t, "INFO", slogLevel("").String())
}
