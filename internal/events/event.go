package events

import (
	"encoding/json"
	"strings"
	"time"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
	"git.home.luguber.info/inful/analysisview/internal/jobs"
)

// Event is a validated push notification.
type Event struct {
	Kind       Kind
	Project    string
	ReceivedAt time.Time
	// Step is set for lifecycle kinds.
	Step *StepPayload
	// Completion is set for KindAnalysisCompleted.
	Completion *CompletionPayload
	// Status is set for coarse status snapshots.
	Status *StatusPayload
}

// StepPayload is the body of a step:* event.
type StepPayload struct {
	ProjectID    string `json:"projectId"`
	Project      string `json:"project,omitempty"`
	AnalysisType string `json:"analysisType"`
	Type         string `json:"type,omitempty"`
	ID           string `json:"id,omitempty"`
	StepID       string `json:"stepId,omitempty"`
	Progress     *int   `json:"progress,omitempty"`
	Error        string `json:"error,omitempty"`
	CurrentStep  string `json:"currentStep,omitempty"`
}

// CompletionPayload is the body of an analysis:completed event.
type CompletionPayload struct {
	ProjectID    string `json:"projectId"`
	Project      string `json:"project,omitempty"`
	AnalysisType string `json:"analysisType,omitempty"`
}

// StatusEntry is one analysis type inside a status snapshot.
type StatusEntry struct {
	AnalysisType string             `json:"analysisType"`
	Status       analysis.JobStatus `json:"status,omitempty"`
	Progress     int                `json:"progress"`
	CurrentStep  string             `json:"currentStep,omitempty"`
	ID           string             `json:"id,omitempty"`
}

// StatusPayload is the body of analysis-status-update and analysis-progress events.
// A snapshot carries either a list of entries or a single inline entry.
type StatusPayload struct {
	ProjectID string        `json:"projectId"`
	Project   string        `json:"project,omitempty"`
	Analyses  []StatusEntry `json:"analyses,omitempty"`
	StatusEntry
}

// Decode parses and validates a raw event. Unknown names and malformed payloads
// are rejected with a classified event error.
func Decode(name string, payload []byte) (Event, error) {
	kind, ok := ParseKind(name)
	if !ok {
		return Event{}, derrors.EventError("unknown event").WithContext("event", name).Build()
	}
	evt := Event{Kind: kind, ReceivedAt: time.Now()}

	switch {
	case kind.IsLifecycle():
		var p StepPayload
		if err := unmarshal(kind, payload, &p); err != nil {
			return Event{}, err
		}
		p.normalize()
		if p.AnalysisType == "" {
			return Event{}, invalid(kind, "analysisType is required")
		}
		if p.Progress != nil && (*p.Progress < 0 || *p.Progress > 100) {
			return Event{}, invalid(kind, "progress must be between 0 and 100")
		}
		evt.Project, evt.Step = p.ProjectID, &p
	case kind == KindAnalysisCompleted:
		var p CompletionPayload
		if err := unmarshal(kind, payload, &p); err != nil {
			return Event{}, err
		}
		p.ProjectID = firstNonEmpty(p.ProjectID, p.Project)
		evt.Project, evt.Completion = p.ProjectID, &p
	case kind.IsStatusSnapshot():
		var p StatusPayload
		if err := unmarshal(kind, payload, &p); err != nil {
			return Event{}, err
		}
		p.ProjectID = firstNonEmpty(p.ProjectID, p.Project)
		if err := p.validate(kind); err != nil {
			return Event{}, err
		}
		evt.Project, evt.Status = p.ProjectID, &p
	}

	if strings.TrimSpace(evt.Project) == "" {
		return Event{}, invalid(kind, "projectId is required")
	}
	return evt, nil
}

// JobEvent converts a lifecycle event for the job tracker.
func (e Event) JobEvent() (jobs.Event, bool) {
	tr, ok := e.Kind.Transition()
	if !ok || e.Step == nil {
		return jobs.Event{}, false
	}
	return jobs.Event{
		Type:       e.Step.AnalysisType,
		Transition: tr,
		Progress:   e.Step.Progress,
		ID:         e.Step.ID,
		Error:      e.Step.Error,
		Step:       e.Step.CurrentStep,
	}, true
}

// PollEntries converts a status snapshot for the job tracker.
func (e Event) PollEntries() []jobs.PollEntry {
	if e.Status == nil {
		return nil
	}
	out := make([]jobs.PollEntry, 0, len(e.Status.Analyses)+1)
	for _, s := range e.Status.entries() {
		status := s.Status
		if status == "" && e.Kind == KindAnalysisProgress {
			status = analysis.StatusRunning
		}
		out = append(out, jobs.PollEntry{
			Type:     s.AnalysisType,
			Status:   status,
			Progress: s.Progress,
			Step:     s.CurrentStep,
			ID:       s.ID,
		})
	}
	return out
}

// CompletedType returns the analysis type named by a completion event, if known.
func (e Event) CompletedType() (analysis.Type, bool) {
	if e.Completion == nil {
		return "", false
	}
	return analysis.ParseType(e.Completion.AnalysisType)
}

func (p *StepPayload) normalize() {
	p.ProjectID = firstNonEmpty(p.ProjectID, p.Project)
	p.AnalysisType = firstNonEmpty(p.AnalysisType, p.Type)
	p.ID = firstNonEmpty(p.ID, p.StepID)
}

func (p StatusPayload) entries() []StatusEntry {
	if len(p.Analyses) > 0 {
		return p.Analyses
	}
	if p.StatusEntry.AnalysisType != "" {
		return []StatusEntry{p.StatusEntry}
	}
	return nil
}

var validStatuses = map[analysis.JobStatus]bool{
	analysis.StatusIdle:      true,
	analysis.StatusPending:   true,
	analysis.StatusRunning:   true,
	analysis.StatusCompleted: true,
	analysis.StatusFailed:    true,
	analysis.StatusCancelled: true,
}

func (p StatusPayload) validate(kind Kind) error {
	entries := p.entries()
	if len(entries) == 0 {
		return invalid(kind, "status snapshot has no entries")
	}
	for _, s := range entries {
		if s.AnalysisType == "" {
			return invalid(kind, "analysisType is required")
		}
		if s.Status != "" && !validStatuses[s.Status] {
			return invalid(kind, "unknown status "+string(s.Status))
		}
		if kind == KindAnalysisStatusUpdate && s.Status == "" {
			return invalid(kind, "status is required")
		}
		if s.Progress < 0 || s.Progress > 100 {
			return invalid(kind, "progress must be between 0 and 100")
		}
	}
	return nil
}

func unmarshal(kind Kind, payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return derrors.WrapError(err, derrors.CategoryEvent, "malformed event payload").
			Warning().
			WithContext("event", string(kind)).
			Build()
	}
	return nil
}

func invalid(kind Kind, reason string) error {
	return derrors.EventError("invalid event payload").
		WithContext("event", string(kind)).
		WithContext("reason", reason).
		Build()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// StatusSnapshot decodes a status endpoint response into poll entries. The body uses
// the analysis-status-update shape, optionally wrapped in a data envelope, and
// does not need to name the project.
func StatusSnapshot(payload []byte) ([]jobs.PollEntry, error) {
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil {
		if d := strings.TrimSpace(string(wrapped.Data)); strings.HasPrefix(d, "{") {
			payload = wrapped.Data
		}
	}
	var p StatusPayload
	if err := unmarshal(KindAnalysisStatusUpdate, payload, &p); err != nil {
		return nil, err
	}
	if len(p.entries()) == 0 {
		return nil, nil
	}
	if err := p.validate(KindAnalysisStatusUpdate); err != nil {
		return nil, err
	}
	return Event{Kind: KindAnalysisStatusUpdate, Status: &p}.PollEntries(), nil
}
