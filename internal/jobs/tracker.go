package jobs

import (
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
	"git.home.luguber.info/inful/analysisview/internal/logfields"
	"git.home.luguber.info/inful/analysisview/internal/metrics"
)

// Tracker owns the job records of one session.
type Tracker struct {
	mu       sync.Mutex
	state    State
	now      func() time.Time
	logger   *slog.Logger
	recorder metrics.Recorder
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(t *Tracker) { t.recorder = metrics.OrNoop(r) }
}

// WithClock overrides the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		now:      time.Now,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) dispatch(a Action) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	next, out := Reduce(t.state, a)
	t.state = next
	if out.Changed {
		t.recorder.SetActiveJobs(next.ActiveCount())
	}
	return out
}

// StartJob registers a pending job. It fails with ErrAlreadyActive when a pending
// or running job exists for the type.
func (t *Tracker) StartJob(typ analysis.Type) error {
	out := t.dispatch(Start{Type: typ, At: t.now()})
	if out.Err != nil {
		t.logger.Debug("Job start rejected", logfields.Category(string(typ)), logfields.Error(out.Err))
		return out.Err
	}
	t.logTransition(out.Job)
	return nil
}

// RetryJob clears the previous error and starts the type again. It returns the
// job that was replaced, if any.
func (t *Tracker) RetryJob(typ analysis.Type) (*analysis.AnalysisJob, error) {
	out := t.dispatch(Retry{Type: typ, At: t.now()})
	if out.Err != nil {
		return out.Previous, out.Err
	}
	t.logTransition(out.Job)
	return out.Previous, nil
}

// ApplyEvent consumes a push lifecycle event and reports whether it changed state.
// Events for unknown types and events that repeat the last applied status,
// progress and step are dropped.
func (t *Tracker) ApplyEvent(e Event) bool {
	out := t.dispatch(Apply{Event: e, At: t.now()})
	t.recorder.IncEvent("step:"+string(e.Transition), out.Changed)
	if !out.Changed {
		t.logger.Debug("Job event suppressed",
			logfields.Category(e.Type),
			slog.String("transition", string(e.Transition)))
		return false
	}
	t.logTransition(out.Job)
	return true
}

// CancelJob drops the local record for typ and returns it. It does not contact the backend.
func (t *Tracker) CancelJob(typ analysis.Type) (analysis.AnalysisJob, bool) {
	out := t.dispatch(Cancel{Type: typ})
	if out.Changed {
		t.logger.Info("Job cancelled locally", logfields.Category(string(typ)), logfields.JobID(out.Job.ID))
	}
	return out.Job, out.Changed
}

// Job returns the tracked job without counting as a read.
func (t *Tracker) Job(typ analysis.Type) (analysis.AnalysisJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Job(typ)
}

// GetStatus returns the status of typ. A terminal status is returned once and then cleared.
func (t *Tracker) GetStatus(typ analysis.Type) analysis.JobStatusView {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.state.Job(typ)
	if !ok {
		return analysis.IdleView
	}
	t.state, _ = Reduce(t.state, Observe{Types: []analysis.Type{typ}})
	return j.View()
}

// Snapshot returns the status of every known analysis type, idle when untracked.
// Terminal statuses included in the snapshot are cleared afterwards.
func (t *Tracker) Snapshot() map[analysis.Type]analysis.JobStatusView {
	t.mu.Lock()
	defer t.mu.Unlock()
	types := analysis.AllTypes()
	out := make(map[analysis.Type]analysis.JobStatusView, len(types))
	for _, typ := range types {
		out[typ] = analysis.IdleView
		if j, ok := t.state.Job(typ); ok {
			out[typ] = j.View()
		}
	}
	t.state, _ = Reduce(t.state, Observe{Types: types})
	return out
}

// PollToken returns a marker to pass to ApplyPollSnapshot for a poll issued now.
func (t *Tracker) PollToken() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.PushSeq()
}

// ApplyPollSnapshot applies fallback poll results. Types that received a push event
// since token was taken keep their pushed state. It returns the types changed.
func (t *Tracker) ApplyPollSnapshot(token uint64, entries []PollEntry) []analysis.Type {
	out := t.dispatch(Poll{Entries: entries, IssuedAt: token, At: t.now()})
	for _, typ := range out.Applied {
		if j, ok := t.Job(typ); ok {
			t.logger.Debug("Job status from poll", logfields.Category(string(typ)), logfields.JobStatus(string(j.Status)), logfields.Progress(j.Progress))
			t.recorder.IncJobTransition(string(typ), string(j.Status))
		}
	}
	return out.Applied
}

// ActiveCount returns the number of pending or running jobs.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.ActiveCount()
}

func (t *Tracker) logTransition(j analysis.AnalysisJob) {
	t.recorder.IncJobTransition(string(j.Type), string(j.Status))
	t.logger.Info("Job state changed",
		logfields.Category(string(j.Type)),
		logfields.JobStatus(string(j.Status)),
		logfields.Progress(j.Progress),
		logfields.JobID(j.ID))
}
