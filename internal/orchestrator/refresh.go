package orchestrator

import (
	"context"
	"sync"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
	"git.home.luguber.info/inful/analysisview/internal/config"
	"git.home.luguber.info/inful/analysisview/internal/events"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
	"git.home.luguber.info/inful/analysisview/internal/logfields"
	"git.home.luguber.info/inful/analysisview/internal/sections"
)

// Refresh reasons reported to metrics.
const (
	ReasonManual     = "manual"
	ReasonCompletion = "completion"
)

// ToggleSection expands or collapses category, loading it on first expansion.
func (o *Orchestrator) ToggleSection(ctx context.Context, category analysis.Type) (sections.Section, error) {
	return o.sections.Toggle(ctx, category)
}

// RetrySection re-issues the fetch of a category whose last load failed.
func (o *Orchestrator) RetrySection(ctx context.Context, category analysis.Type) (sections.Section, error) {
	return o.sections.Retry(ctx, category)
}

// Section returns the state of one category section.
func (o *Orchestrator) Section(category analysis.Type) sections.Section {
	return o.sections.Section(category)
}

// ForcedRefresh drops every cached payload, marks all sections stale, reruns the
// initial load and re-fetches each expanded section exactly once.
func (o *Orchestrator) ForcedRefresh(ctx context.Context, reason string) error {
	o.recorder.IncRefresh(reason)
	o.logger.Info("Refreshing all analysis data", "reason", reason)

	o.invalidateAll()
	expanded := o.sections.MarkAllStale()
	err := o.InitialLoad(ctx)
	o.reload(ctx, expanded)
	return err
}

// refreshCategory is the narrow variant of ForcedRefresh: only the payload kind
// of category and the initial batch are refetched, and only sections sharing
// that kind are marked stale.
func (o *Orchestrator) refreshCategory(ctx context.Context, category analysis.Type, reason string) error {
	o.recorder.IncRefresh(reason)
	o.logger.Info("Refreshing analysis category", "reason", reason, logfields.Category(string(category)))

	kind := category.DataKind()
	o.invalidate(kind)
	var expanded []analysis.Type
	for _, c := range analysis.AllTypes() {
		if c.DataKind() != kind {
			continue
		}
		if o.sections.MarkStale(c).Expanded {
			expanded = append(expanded, c)
		}
	}
	err := o.InitialLoad(ctx)
	o.reload(ctx, expanded)
	return err
}

func (o *Orchestrator) reload(ctx context.Context, expanded []analysis.Type) {
	var wg sync.WaitGroup
	for _, c := range expanded {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.sections.Reload(ctx, c); err != nil {
				o.logger.Warn("Section reload failed", logfields.Category(string(c)), logfields.Error(err))
			}
		}()
	}
	wg.Wait()
}

// OnCompletionEvent refreshes after an analysis completed for the active project.
// It reports whether the event triggered a refresh.
func (o *Orchestrator) OnCompletionEvent(ctx context.Context, evt events.Event) bool {
	if evt.Project != o.project {
		return false
	}
	var err error
	if category, ok := evt.CompletedType(); ok && o.invalidation == config.InvalidateCategory {
		err = o.refreshCategory(ctx, category, ReasonCompletion)
	} else {
		err = o.ForcedRefresh(ctx, ReasonCompletion)
	}
	if err != nil {
		o.logger.Warn("Refresh after completion failed", logfields.Error(err))
	}
	return true
}

// HandleEvent routes one validated push event.
func (o *Orchestrator) HandleEvent(ctx context.Context, evt events.Event) {
	if evt.Project != o.project {
		return
	}
	switch {
	case evt.Kind.IsLifecycle():
		if je, ok := evt.JobEvent(); ok {
			o.tracker.ApplyEvent(je)
		}
	case evt.Kind.IsStatusSnapshot():
		applied := o.tracker.ApplyPollSnapshot(o.tracker.PollToken(), evt.PollEntries())
		o.recorder.IncEvent(string(evt.Kind), len(applied) > 0)
	case evt.Kind == events.KindAnalysisCompleted:
		o.recorder.IncEvent(string(evt.Kind), true)
		o.OnCompletionEvent(ctx, evt)
	}
	if o.onEvent != nil {
		o.onEvent(evt)
	}
}

// Run subscribes to the push channel for the active project and blocks until ctx
// is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.channel == nil {
		return derrors.ConfigError("no event channel configured").Build()
	}
	unsubscribe, err := o.channel.Subscribe(ctx, o.project, o.HandleEvent)
	if err != nil {
		return err
	}
	defer unsubscribe()
	o.logger.Info("Listening for analysis events")
	<-ctx.Done()
	return nil
}

// ExpandedSections lists the categories currently expanded, in display order.
func (o *Orchestrator) ExpandedSections() []analysis.Type {
	all := o.sections.Sections()
	var out []analysis.Type
	for _, c := range analysis.AllTypes() {
		if all[c].Expanded {
			out = append(out, c)
		}
	}
	return out
}
