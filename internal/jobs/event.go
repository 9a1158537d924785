package jobs

import "git.home.luguber.info/inful/analysisview/internal/analysis"

// Transition is the lifecycle step reported by a job event.
type Transition string

const (
	TransitionCreated   Transition = "created"
	TransitionStarted   Transition = "started"
	TransitionProgress  Transition = "progress"
	TransitionCompleted Transition = "completed"
	TransitionFailed    Transition = "failed"
	TransitionCancelled Transition = "cancelled"
)

// Event is a lifecycle notification for one analysis type. Type is kept raw so
// that events for types this client does not know are ignored instead of rejected.
type Event struct {
	Type       string
	Transition Transition
	Progress   *int
	ID         string
	Error      string
	Step       string
}

// PollEntry is one analysis type's status as reported by the fallback status poll.
type PollEntry struct {
	Type     string
	Status   analysis.JobStatus
	Progress int
	Step     string
	ID       string
}
