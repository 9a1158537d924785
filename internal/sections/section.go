// Package sections decides when an expandable category section needs a fetch.
//
// Between two invalidations at most one fetch is issued per category, however
// often it is toggled. Each invalidation starts a new generation; results that
// arrive for an older generation are discarded.
package sections

import (
	"maps"

	"git.home.luguber.info/inful/analysisview/internal/aggregate"
	"git.home.luguber.info/inful/analysisview/internal/analysis"
)

// Section is the display state of one category.
type Section struct {
	Expanded   bool
	Loaded     bool
	InFlight   bool
	Generation uint64
	Data       *aggregate.Data
	Err        error
}

// State maps categories to sections. Treat it as immutable; Reduce copies on write.
type State struct {
	sections map[analysis.Type]Section
}

// Section returns the section for c (the zero Section when never touched).
func (s State) Section(c analysis.Type) Section {
	return s.sections[c]
}

// All returns a copy of every touched section.
func (s State) All() map[analysis.Type]Section {
	return maps.Clone(s.sections)
}

func (s State) with(c analysis.Type, sec Section) State {
	next := maps.Clone(s.sections)
	if next == nil {
		next = make(map[analysis.Type]Section)
	}
	next[c] = sec
	return State{sections: next}
}

// Action is an input to Reduce.
type Action interface{ isAction() }

// Toggle flips Expanded.
type Toggle struct{ Category analysis.Type }

// Begin sets the in-flight guard when a fetch is due. Force also begins for a
// collapsed section (retry affordance).
type Begin struct {
	Category analysis.Type
	Force    bool
}

// Succeed stores the result of a fetch started in Generation.
type Succeed struct {
	Category   analysis.Type
	Generation uint64
	Data       aggregate.Data
}

// Fail records a failed fetch started in Generation.
type Fail struct {
	Category   analysis.Type
	Generation uint64
	Err        error
}

// MarkStale clears Loaded and starts a new generation; Expanded is kept.
type MarkStale struct{ Category analysis.Type }

func (Toggle) isAction()    {}
func (Begin) isAction()     {}
func (Succeed) isAction()   {}
func (Fail) isAction()      {}
func (MarkStale) isAction() {}

// Outcome reports the effect of one Reduce call.
type Outcome struct {
	Section Section
	// Fetch is set by Begin when the caller must now issue the fetch for Section.Generation.
	Fetch bool
	// Stale is set when a result was discarded because its generation is outdated.
	Stale bool
}

// Reduce is the section state machine.
func Reduce(s State, a Action) (State, Outcome) {
	switch act := a.(type) {
	case Toggle:
		sec := s.Section(act.Category)
		sec.Expanded = !sec.Expanded
		return s.with(act.Category, sec), Outcome{Section: sec}
	case Begin:
		sec := s.Section(act.Category)
		if sec.Loaded || sec.InFlight || (!sec.Expanded && !act.Force) {
			return s, Outcome{Section: sec}
		}
		if act.Force {
			sec.Expanded = true
		}
		sec.InFlight = true
		sec.Err = nil
		return s.with(act.Category, sec), Outcome{Section: sec, Fetch: true}
	case Succeed:
		sec := s.Section(act.Category)
		if act.Generation != sec.Generation {
			return s, Outcome{Section: sec, Stale: true}
		}
		data := act.Data
		sec.Data = &data
		sec.Loaded = true
		sec.InFlight = false
		sec.Err = nil
		return s.with(act.Category, sec), Outcome{Section: sec}
	case Fail:
		sec := s.Section(act.Category)
		if act.Generation != sec.Generation {
			return s, Outcome{Section: sec, Stale: true}
		}
		sec.Data = nil
		sec.Loaded = false
		sec.InFlight = false
		sec.Err = act.Err
		return s.with(act.Category, sec), Outcome{Section: sec}
	case MarkStale:
		sec := s.Section(act.Category)
		sec.Loaded = false
		sec.InFlight = false
		sec.Generation++
		return s.with(act.Category, sec), Outcome{Section: sec}
	default:
		return s, Outcome{}
	}
}
