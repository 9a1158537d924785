package poll

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
	"git.home.luguber.info/inful/analysisview/internal/jobs"
)

type fakeSource struct {
	mu     sync.Mutex
	body   string
	err    error
	calls  int
	during func()
}

func (f *fakeSource) GetStatus(_ context.Context, project string, opts analysis.FetchOptions) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	body, err, during := f.body, f.err, f.during
	f.mu.Unlock()
	if during != nil {
		during()
	}
	if project != "p1" || !opts.Fast {
		return nil, errors.New("unexpected request")
	}
	return json.RawMessage(body), err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPollOnceAppliesSnapshot(t *testing.T) {
	tr := jobs.NewTracker()
	require.NoError(t, tr.StartJob(analysis.TypeSecurity))
	src := &fakeSource{body: `{"data":{"analyses":[{"analysisType":"security","status":"running","progress":45}]}}`}

	var notified []analysis.Type
	p, err := New(src, tr, "p1", OnApplied(func(ts []analysis.Type) { notified = ts }))
	require.NoError(t, err)

	applied, err := p.PollOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []analysis.Type{analysis.TypeSecurity}, applied)
	assert.Equal(t, notified, applied)
	assert.Equal(t, analysis.JobStatusView{Status: analysis.StatusRunning, Progress: 45}, tr.GetStatus(analysis.TypeSecurity))
}

func TestPushDuringPollWins(t *testing.T) {
	tr := jobs.NewTracker()
	require.NoError(t, tr.StartJob(analysis.TypeSecurity))
	src := &fakeSource{
		body: `{"analyses":[{"analysisType":"security","status":"running","progress":10}]}`,
		during: func() {
			p := 80
			tr.ApplyEvent(jobs.Event{Type: "security", Transition: jobs.TransitionProgress, Progress: &p})
		},
	}
	p, err := New(src, tr, "p1")
	require.NoError(t, err)

	applied, err := p.PollOnce(t.Context())
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Equal(t, 80, tr.GetStatus(analysis.TypeSecurity).Progress)
}

func TestPollOnceErrors(t *testing.T) {
	tr := jobs.NewTracker()
	p, err := New(&fakeSource{err: errors.New("down")}, tr, "p1")
	require.NoError(t, err)
	_, err = p.PollOnce(t.Context())
	require.Error(t, err)

	p, err = New(&fakeSource{body: `not json`}, tr, "p1")
	require.NoError(t, err)
	_, err = p.PollOnce(t.Context())
	require.Error(t, err)
}

func TestStartRunsOnInterval(t *testing.T) {
	tr := jobs.NewTracker()
	src := &fakeSource{body: `{}`}
	p, err := New(src, tr, "p1", WithInterval(20*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, p.Start(t.Context()))
	require.Eventually(t, func() bool { return src.callCount() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Stop())
}
