package jobs

import (
	"maps"
	"time"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
)

// ErrAlreadyActive is returned when starting a job for a type that already has a
// pending or running job. Match with errors.Is.
var ErrAlreadyActive = derrors.AlreadyExistsError("analysis job already active").Build()

// State is the tracked job set. Treat it as immutable: Reduce returns a new State
// whenever something changes and never mutates its input.
type State struct {
	jobs map[analysis.Type]analysis.AnalysisJob
	// pushSeq records, per type, the sequence number of the last applied push event.
	pushSeq map[analysis.Type]uint64
	seq     uint64
}

// Job returns the tracked job for t.
func (s State) Job(t analysis.Type) (analysis.AnalysisJob, bool) {
	j, ok := s.jobs[t]
	return j, ok
}

// Jobs returns a copy of every tracked job.
func (s State) Jobs() map[analysis.Type]analysis.AnalysisJob {
	return maps.Clone(s.jobs)
}

// PushSeq returns the sequence number of the most recent push event.
func (s State) PushSeq() uint64 { return s.seq }

// ActiveCount returns the number of pending or running jobs.
func (s State) ActiveCount() int {
	n := 0
	for _, j := range s.jobs {
		if j.Status.IsActive() {
			n++
		}
	}
	return n
}

func (s State) withJob(j analysis.AnalysisJob) State {
	next := s
	next.jobs = maps.Clone(s.jobs)
	if next.jobs == nil {
		next.jobs = make(map[analysis.Type]analysis.AnalysisJob)
	}
	next.jobs[j.Type] = j
	return next
}

func (s State) without(types ...analysis.Type) State {
	next := s
	next.jobs = maps.Clone(s.jobs)
	for _, t := range types {
		delete(next.jobs, t)
	}
	return next
}

func (s State) withPush(t analysis.Type) State {
	next := s
	next.seq = s.seq + 1
	next.pushSeq = maps.Clone(s.pushSeq)
	if next.pushSeq == nil {
		next.pushSeq = make(map[analysis.Type]uint64)
	}
	next.pushSeq[t] = next.seq
	return next
}

// Action is an input to Reduce.
type Action interface{ isAction() }

// Start registers a pending job.
type Start struct {
	Type analysis.Type
	At   time.Time
}

// Apply consumes a push lifecycle event.
type Apply struct {
	Event Event
	At    time.Time
}

// Cancel drops the local job record.
type Cancel struct{ Type analysis.Type }

// Retry clears a previous error and starts the type again.
type Retry struct {
	Type analysis.Type
	At   time.Time
}

// Observe marks a read of the listed types; terminal jobs among them are removed.
type Observe struct{ Types []analysis.Type }

// Poll applies fallback status results. Types that received a push event after
// IssuedAt (a PushSeq value) are skipped.
type Poll struct {
	Entries  []PollEntry
	IssuedAt uint64
	At       time.Time
}

func (Start) isAction()   {}
func (Apply) isAction()   {}
func (Cancel) isAction()  {}
func (Retry) isAction()   {}
func (Observe) isAction() {}
func (Poll) isAction()    {}

// Outcome describes the effect of one Reduce call.
type Outcome struct {
	Changed bool
	// Job is the job after the action (or the removed job for Cancel).
	Job analysis.AnalysisJob
	// Previous is the job before the action, when one existed.
	Previous *analysis.AnalysisJob
	// Applied lists the types changed by a Poll.
	Applied []analysis.Type
	Err     error
}

// Reduce is the job state machine:
//
//	idle -> pending -> running (progress...) -> completed|failed|cancelled -> idle
func Reduce(s State, a Action) (State, Outcome) {
	switch act := a.(type) {
	case Start:
		return reduceStart(s, act.Type, act.At)
	case Retry:
		return reduceStart(s, act.Type, act.At)
	case Apply:
		return reduceApply(s, act)
	case Cancel:
		prev, ok := s.jobs[act.Type]
		if !ok {
			return s, Outcome{}
		}
		return s.without(act.Type), Outcome{Changed: true, Job: prev, Previous: &prev}
	case Observe:
		var done []analysis.Type
		for _, t := range act.Types {
			if j, ok := s.jobs[t]; ok && j.Status.IsTerminal() {
				done = append(done, t)
			}
		}
		if len(done) == 0 {
			return s, Outcome{}
		}
		return s.without(done...), Outcome{Changed: true, Applied: done}
	case Poll:
		return reducePoll(s, act)
	default:
		return s, Outcome{}
	}
}

// reduceStart backs both Start and Retry: the new pending job never carries the
// previous error, which stays available on Outcome.Previous.
func reduceStart(s State, t analysis.Type, at time.Time) (State, Outcome) {
	prev, exists := s.jobs[t]
	if exists && prev.Status.IsActive() {
		return s, Outcome{Job: prev, Previous: &prev, Err: ErrAlreadyActive.WithContext("analysis_type", string(t))}
	}
	job := analysis.AnalysisJob{Type: t, Status: analysis.StatusPending, UpdatedAt: at}
	out := Outcome{Changed: true, Job: job}
	if exists {
		out.Previous = &prev
	}
	return s.withJob(job), out
}

func reduceApply(s State, act Apply) (State, Outcome) {
	t, ok := analysis.ParseType(act.Event.Type)
	if !ok {
		return s, Outcome{}
	}
	cur, exists := s.jobs[t]
	next, ok := transition(cur, exists, t, act.Event)
	if !ok {
		return s, Outcome{Job: cur}
	}
	next.UpdatedAt = act.At
	var prev *analysis.AnalysisJob
	if exists {
		prev = &cur
	}
	return s.withJob(next).withPush(t), Outcome{Changed: true, Job: next, Previous: prev}
}

// transition computes the next job for an event. It reports false when the event
// would not change status, progress or current step.
func transition(cur analysis.AnalysisJob, exists bool, t analysis.Type, e Event) (analysis.AnalysisJob, bool) {
	next := cur
	if !exists {
		next = analysis.AnalysisJob{Type: t, Status: analysis.StatusIdle}
	}
	switch e.Transition {
	case TransitionCreated, TransitionStarted:
		if exists && cur.Status.IsTerminal() {
			next = analysis.AnalysisJob{Type: t}
		}
		next.Status = analysis.StatusRunning
	case TransitionProgress:
		if exists && cur.Status.IsTerminal() {
			return cur, false
		}
		next.Status = analysis.StatusRunning
	case TransitionCompleted:
		next.Status = analysis.StatusCompleted
		next.Progress = 100
	case TransitionFailed:
		next.Status = analysis.StatusFailed
		next.Error = e.Error
	case TransitionCancelled:
		next.Status = analysis.StatusCancelled
	default:
		return cur, false
	}
	if e.Progress != nil && e.Transition != TransitionCompleted {
		next.Progress = analysis.ClampProgress(*e.Progress)
	}
	if e.Step != "" {
		next.CurrentStep = e.Step
	}
	if e.ID != "" {
		next.ID = e.ID
	}
	if exists && sameObservable(cur, next) {
		return cur, false
	}
	return next, true
}

func sameObservable(a, b analysis.AnalysisJob) bool {
	return a.Status == b.Status && a.Progress == b.Progress && a.CurrentStep == b.CurrentStep
}

func reducePoll(s State, act Poll) (State, Outcome) {
	var applied []analysis.Type
	for _, e := range act.Entries {
		t, ok := analysis.ParseType(e.Type)
		if !ok {
			continue
		}
		if s.pushSeq[t] > act.IssuedAt {
			continue
		}
		cur, exists := s.jobs[t]
		next, ok := pollTransition(cur, exists, t, e)
		if !ok {
			continue
		}
		next.UpdatedAt = act.At
		s = s.withJob(next)
		applied = append(applied, t)
	}
	return s, Outcome{Changed: len(applied) > 0, Applied: applied}
}

func pollTransition(cur analysis.AnalysisJob, exists bool, t analysis.Type, e PollEntry) (analysis.AnalysisJob, bool) {
	switch {
	case e.Status == analysis.StatusIdle || e.Status == "":
		return cur, false
	case e.Status.IsTerminal() && (!exists || !cur.Status.IsActive()):
		return cur, false
	case e.Status.IsActive() && exists && cur.Status.IsTerminal():
		return cur, false
	}
	next := cur
	if !exists {
		next = analysis.AnalysisJob{Type: t}
	}
	next.Status = e.Status
	next.Progress = analysis.ClampProgress(e.Progress)
	if e.Status == analysis.StatusCompleted {
		next.Progress = 100
	}
	if e.Step != "" {
		next.CurrentStep = e.Step
	}
	if e.ID != "" {
		next.ID = e.ID
	}
	if exists && sameObservable(cur, next) {
		return cur, false
	}
	return next, true
}
