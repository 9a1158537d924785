package orchestrator

import (
	"time"

	"git.home.luguber.info/inful/analysisview/internal/aggregate"
	"git.home.luguber.info/inful/analysisview/internal/analysis"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
	"git.home.luguber.info/inful/analysisview/internal/sections"
)

// View is the state exposed to display layers.
type View struct {
	Project       string                                   `json:"project"`
	SessionID     string                                   `json:"sessionId"`
	GeneratedAt   time.Time                                `json:"generatedAt"`
	HasRecentData bool                                     `json:"hasRecentData"`
	PageError     *ErrorView                               `json:"pageError,omitempty"`
	Sections      map[analysis.Type]SectionView            `json:"sections"`
	Jobs          map[analysis.Type]analysis.JobStatusView `json:"jobs"`
	StartErrors   map[analysis.Type]string                 `json:"startErrors,omitempty"`
}

// SectionView is one category as shown to the user.
type SectionView struct {
	Label    string          `json:"label"`
	Expanded bool            `json:"expanded"`
	Loaded   bool            `json:"loaded"`
	Loading  bool            `json:"loading"`
	Data     *aggregate.Data `json:"data"`
	Error    *ErrorView      `json:"error,omitempty"`
}

// ErrorView describes an error together with the action that can clear it.
type ErrorView struct {
	Message     string `json:"message"`
	Category    string `json:"category"`
	Retryable   bool   `json:"retryable"`
	RetryAction string `json:"retryAction,omitempty"`
}

func errorView(err error) *ErrorView {
	if err == nil {
		return nil
	}
	return &ErrorView{
		Message:     err.Error(),
		Category:    string(derrors.GetCategory(err)),
		Retryable:   retryable(err),
		RetryAction: derrors.RetryAction(err),
	}
}

// retryable reports whether repeating the failed action can succeed without
// the user changing its input.
func retryable(err error) bool {
	if derrors.RetryAction(err) != "" {
		return true
	}
	switch derrors.GetCategory(err) {
	case derrors.CategoryValidation, derrors.CategoryConfirmation, derrors.CategoryConfig:
		return false
	}
	return true
}

// NewSectionView converts section state for display.
func NewSectionView(category analysis.Type, s sections.Section) SectionView {
	return SectionView{
		Label:    category.Label(),
		Expanded: s.Expanded,
		Loaded:   s.Loaded,
		Loading:  s.InFlight,
		Data:     s.Data,
		Error:    errorView(s.Err),
	}
}

// View builds the current snapshot. It counts as one read of the job tracker, so
// terminal jobs appear in exactly one View.
func (o *Orchestrator) View() View {
	secs := o.sections.Sections()
	v := View{
		Project:     o.project,
		SessionID:   o.sessionID,
		GeneratedAt: o.now(),
		Sections:    make(map[analysis.Type]SectionView, len(secs)),
		Jobs:        o.tracker.Snapshot(),
	}
	for c, s := range secs {
		v.Sections[c] = NewSectionView(c, s)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	v.HasRecentData = o.hasRecentData
	v.PageError = errorView(o.pageErr)
	if len(o.startErrs) > 0 {
		v.StartErrors = make(map[analysis.Type]string, len(o.startErrs))
		for t, err := range o.startErrs {
			v.StartErrors[t] = err.Error()
		}
	}
	return v
}
