package events

import (
	"strings"

	"git.home.luguber.info/inful/analysisview/internal/jobs"
)

// Kind is the closed set of push event names.
type Kind string

const (
	KindStepCreated          Kind = "step:created"
	KindStepStarted          Kind = "step:started"
	KindStepProgress         Kind = "step:progress"
	KindStepCompleted        Kind = "step:completed"
	KindStepFailed           Kind = "step:failed"
	KindStepCancelled        Kind = "step:cancelled"
	KindAnalysisCompleted    Kind = "analysis:completed"
	KindAnalysisStatusUpdate Kind = "analysis-status-update"
	KindAnalysisProgress     Kind = "analysis-progress"
)

var kindAliases = map[string]Kind{
	"analysis-completed": KindAnalysisCompleted,
}

var allKinds = []Kind{
	KindStepCreated,
	KindStepStarted,
	KindStepProgress,
	KindStepCompleted,
	KindStepFailed,
	KindStepCancelled,
	KindAnalysisCompleted,
	KindAnalysisStatusUpdate,
	KindAnalysisProgress,
}

// AllKinds returns every canonical kind.
func AllKinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind maps a wire event name, including aliases, onto its canonical Kind.
func ParseKind(name string) (Kind, bool) {
	name = strings.TrimSpace(name)
	if k, ok := kindAliases[name]; ok {
		return k, true
	}
	for _, k := range allKinds {
		if string(k) == name {
			return k, true
		}
	}
	return "", false
}

// IsLifecycle reports whether k is a per-job step event.
func (k Kind) IsLifecycle() bool {
	_, ok := k.Transition()
	return ok
}

// IsStatusSnapshot reports whether k carries a coarse status snapshot.
func (k Kind) IsStatusSnapshot() bool {
	return k == KindAnalysisStatusUpdate || k == KindAnalysisProgress
}

// Transition returns the job transition of a step event.
func (k Kind) Transition() (jobs.Transition, bool) {
	switch k {
	case KindStepCreated:
		return jobs.TransitionCreated, true
	case KindStepStarted:
		return jobs.TransitionStarted, true
	case KindStepProgress:
		return jobs.TransitionProgress, true
	case KindStepCompleted:
		return jobs.TransitionCompleted, true
	case KindStepFailed:
		return jobs.TransitionFailed, true
	case KindStepCancelled:
		return jobs.TransitionCancelled, true
	default:
		return "", false
	}
}
