package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func progress(p int) *int { return &p }

func apply(s State, typ string, tr Transition, mods ...func(*Event)) (State, Outcome) {
	e := Event{Type: typ, Transition: tr}
	for _, m := range mods {
		m(&e)
	}
	return Reduce(s, Apply{Event: e, At: t0})
}

func withProgress(p int) func(*Event) { return func(e *Event) { e.Progress = progress(p) } }

func TestStartRejectsActiveJob(t *testing.T) {
	s, out := Reduce(State{}, Start{Type: analysis.TypeSecurity, At: t0})
	require.NoError(t, out.Err)
	job, ok := s.Job(analysis.TypeSecurity)
	require.True(t, ok)
	assert.Equal(t, analysis.StatusPending, job.Status)

	s2, out := Reduce(s, Start{Type: analysis.TypeSecurity, At: t0})
	require.ErrorIs(t, out.Err, ErrAlreadyActive)
	assert.False(t, out.Changed)
	assert.Equal(t, s, s2)
}

func TestStartAcceptedAfterTerminal(t *testing.T) {
	s, _ := Reduce(State{}, Start{Type: analysis.TypeSecurity, At: t0})
	s, _ = apply(s, "security", TransitionFailed, func(e *Event) { e.Error = "boom" })

	s, out := Reduce(s, Start{Type: analysis.TypeSecurity, At: t0})
	require.NoError(t, out.Err)
	require.NotNil(t, out.Previous)
	assert.Equal(t, analysis.StatusFailed, out.Previous.Status)
	job, _ := s.Job(analysis.TypeSecurity)
	assert.Equal(t, analysis.StatusPending, job.Status)
	assert.Empty(t, job.Error)
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	s, _ := Reduce(State{}, Start{Type: analysis.TypePerformance, At: t0})
	before := s.Jobs()

	_, _ = apply(s, "performance", TransitionStarted, func(e *Event) { e.ID = "job-1" })

	assert.Equal(t, before, s.Jobs())
}

func TestLifecycleTransitions(t *testing.T) {
	s, _ := Reduce(State{}, Start{Type: analysis.TypeArchitecture, At: t0})

	s, out := apply(s, "architecture", TransitionStarted, func(e *Event) { e.ID = "job-7" })
	require.True(t, out.Changed)
	assert.Equal(t, analysis.StatusRunning, out.Job.Status)
	assert.Equal(t, "job-7", out.Job.ID)

	s, out = apply(s, "architecture", TransitionProgress, withProgress(55), func(e *Event) { e.Step = "graph" })
	require.True(t, out.Changed)
	assert.Equal(t, 55, out.Job.Progress)
	assert.Equal(t, "graph", out.Job.CurrentStep)

	s, out = apply(s, "architecture", TransitionCompleted)
	require.True(t, out.Changed)
	assert.Equal(t, analysis.StatusCompleted, out.Job.Status)
	assert.Equal(t, 100, out.Job.Progress)
	assert.Equal(t, "job-7", out.Job.ID)
	assert.Zero(t, s.ActiveCount())
}

func TestFailedKeepsError(t *testing.T) {
	s, _ := Reduce(State{}, Start{Type: analysis.TypeSecurity, At: t0})
	s, out := apply(s, "security", TransitionFailed, func(e *Event) { e.Error = "scanner crashed" })
	require.True(t, out.Changed)
	job, _ := s.Job(analysis.TypeSecurity)
	assert.Equal(t, analysis.StatusFailed, job.Status)
	assert.Equal(t, "scanner crashed", job.Error)
}

func TestUnknownTypeIgnored(t *testing.T) {
	s, out := apply(State{}, "licensing", TransitionStarted)
	assert.False(t, out.Changed)
	assert.Empty(t, s.Jobs())
	assert.Zero(t, s.PushSeq())
}

func TestProgressBeforeStartedCreatesJob(t *testing.T) {
	s, out := apply(State{}, "tech-stack", TransitionProgress, withProgress(10))
	require.True(t, out.Changed)
	assert.Nil(t, out.Previous)
	job, ok := s.Job(analysis.TypeTechStack)
	require.True(t, ok)
	assert.Equal(t, analysis.StatusRunning, job.Status)
	assert.Equal(t, 10, job.Progress)
}

func TestDuplicateEventsSuppressed(t *testing.T) {
	s, _ := apply(State{}, "security", TransitionProgress, withProgress(40))
	seq := s.PushSeq()

	s2, out := apply(s, "security", TransitionProgress, withProgress(40))
	assert.False(t, out.Changed)
	assert.Equal(t, seq, s2.PushSeq())
}

func TestOutOfOrderProgressLastValueWins(t *testing.T) {
	s, _ := apply(State{}, "security", TransitionProgress, withProgress(40))
	s, _ = apply(s, "security", TransitionProgress, withProgress(70))
	job, _ := s.Job(analysis.TypeSecurity)
	assert.Equal(t, 70, job.Progress)

	// An older event that differs is applied: ordering is not restored.
	s, out := apply(s, "security", TransitionProgress, withProgress(40))
	assert.True(t, out.Changed)
	job, _ = s.Job(analysis.TypeSecurity)
	assert.Equal(t, 40, job.Progress)
}

func TestProgressAfterTerminalIgnored(t *testing.T) {
	s, _ := apply(State{}, "security", TransitionCompleted)
	_, out := apply(s, "security", TransitionProgress, withProgress(30))
	assert.False(t, out.Changed)
}

func TestObserveRemovesOnlyTerminalJobs(t *testing.T) {
	s, _ := Reduce(State{}, Start{Type: analysis.TypeSecurity, At: t0})
	s, _ = apply(s, "performance", TransitionCancelled)

	s, out := Reduce(s, Observe{Types: analysis.AllTypes()})
	assert.True(t, out.Changed)
	assert.Equal(t, []analysis.Type{analysis.TypePerformance}, out.Applied)
	_, ok := s.Job(analysis.TypePerformance)
	assert.False(t, ok)
	_, ok = s.Job(analysis.TypeSecurity)
	assert.True(t, ok)
}

func TestCancelRemovesRecord(t *testing.T) {
	s, _ := Reduce(State{}, Start{Type: analysis.TypeSecurity, At: t0})
	s, _ = apply(s, "security", TransitionStarted, func(e *Event) { e.ID = "j1" })

	s, out := Reduce(s, Cancel{Type: analysis.TypeSecurity})
	require.True(t, out.Changed)
	assert.Equal(t, "j1", out.Job.ID)
	_, ok := s.Job(analysis.TypeSecurity)
	assert.False(t, ok)

	_, out = Reduce(s, Cancel{Type: analysis.TypeSecurity})
	assert.False(t, out.Changed)
}

func TestRetryRejectsActiveJob(t *testing.T) {
	s, _ := Reduce(State{}, Start{Type: analysis.TypeSecurity, At: t0})
	_, out := Reduce(s, Retry{Type: analysis.TypeSecurity, At: t0})
	assert.True(t, errors.Is(out.Err, ErrAlreadyActive))
}

func TestPollPreemptedByPush(t *testing.T) {
	s, _ := Reduce(State{}, Start{Type: analysis.TypeSecurity, At: t0})
	s, _ = Reduce(s, Start{Type: analysis.TypePerformance, At: t0})
	token := s.PushSeq()

	// Push after poll issue for security only.
	s, _ = apply(s, "security", TransitionProgress, withProgress(80))

	s, out := Reduce(s, Poll{IssuedAt: token, At: t0, Entries: []PollEntry{
		{Type: "security", Status: analysis.StatusRunning, Progress: 20},
		{Type: "performance", Status: analysis.StatusRunning, Progress: 35},
		{Type: "unknown", Status: analysis.StatusRunning, Progress: 1},
	}})

	assert.Equal(t, []analysis.Type{analysis.TypePerformance}, out.Applied)
	sec, _ := s.Job(analysis.TypeSecurity)
	assert.Equal(t, 80, sec.Progress)
	perf, _ := s.Job(analysis.TypePerformance)
	assert.Equal(t, 35, perf.Progress)
	assert.Equal(t, analysis.StatusRunning, perf.Status)
}

func TestPollIgnoresIdleAndOrphanTerminal(t *testing.T) {
	s, out := Reduce(State{}, Poll{Entries: []PollEntry{
		{Type: "security", Status: analysis.StatusIdle},
		{Type: "performance", Status: analysis.StatusCompleted},
	}})
	assert.False(t, out.Changed)
	assert.Empty(t, s.Jobs())
}

func TestPollCompletesActiveJob(t *testing.T) {
	s, _ := Reduce(State{}, Start{Type: analysis.TypeSecurity, At: t0})
	s, out := Reduce(s, Poll{IssuedAt: s.PushSeq(), Entries: []PollEntry{
		{Type: "security", Status: analysis.StatusCompleted},
	}})
	require.True(t, out.Changed)
	job, _ := s.Job(analysis.TypeSecurity)
	assert.Equal(t, analysis.StatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
}
