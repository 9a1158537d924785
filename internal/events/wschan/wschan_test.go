package wschan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/analysisview/internal/config"
	"git.home.luguber.info/inful/analysisview/internal/events"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
	"git.home.luguber.info/inful/analysisview/internal/retry"
)

type collector struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collector) handle(_ context.Context, evt events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func wsServer(t *testing.T, messages []string, hold bool) (*httptest.Server, <-chan *http.Request) {
	t.Helper()
	requests := make(chan *http.Request, 16)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- r.Clone(context.Background())
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		if hold {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, requests
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events/ws"
}

func TestSubscribeDispatchesEnvelopes(t *testing.T) {
	srv, requests := wsServer(t, []string{
		`{"event":"step:started","data":{"projectId":"p1","analysisType":"architecture","id":"j1"}}`,
		`not json`,
		`{"event":"step:progress","data":{"projectId":"p2","analysisType":"architecture","progress":5}}`,
		`{"type":"analysis:completed","data":{"projectId":"p1","analysisType":"architecture"}}`,
	}, true)

	c := &collector{}
	unsubscribe, err := New(wsURL(srv), WithToken("tok")).Subscribe(t.Context(), "p1", c.handle)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool { return c.count() == 2 }, time.Second, 10*time.Millisecond)
	c.mu.Lock()
	assert.Equal(t, events.KindStepStarted, c.events[0].Kind)
	assert.Equal(t, events.KindAnalysisCompleted, c.events[1].Kind)
	c.mu.Unlock()

	r := <-requests
	assert.Equal(t, "p1", r.URL.Query().Get("project"))
	assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
}

func TestSubscribeReconnects(t *testing.T) {
	srv, _ := wsServer(t, []string{
		`{"event":"step:progress","data":{"projectId":"p1","analysisType":"security","progress":1}}`,
	}, false)

	c := &collector{}
	policy := retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 0)
	unsubscribe, err := New(wsURL(srv), WithRetryPolicy(policy)).Subscribe(t.Context(), "p1", c.handle)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool { return c.count() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribeRejectsHTTPURL(t *testing.T) {
	_, err := New("http://example.com/events").Subscribe(t.Context(), "p1", func(context.Context, events.Event) {})
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryConfig))
}

func TestSubscribeHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(wsURL(srv)).Subscribe(t.Context(), "p1", func(context.Context, events.Event) {})
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryNetwork))
}
