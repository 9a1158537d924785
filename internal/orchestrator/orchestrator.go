// Package orchestrator coordinates fetching, caching, job tracking and push-driven
// refresh for one active project. It is the only component that mutates the
// cache and the section state.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
	"git.home.luguber.info/inful/analysisview/internal/cache"
	"git.home.luguber.info/inful/analysisview/internal/config"
	"git.home.luguber.info/inful/analysisview/internal/events"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
	"git.home.luguber.info/inful/analysisview/internal/jobs"
	"git.home.luguber.info/inful/analysisview/internal/logfields"
	"git.home.luguber.info/inful/analysisview/internal/metrics"
	"git.home.luguber.info/inful/analysisview/internal/retry"
	"git.home.luguber.info/inful/analysisview/internal/sections"
)

// DefaultFreshnessWindow is how recent the latest history entry must be for a new
// analysis to need confirmation.
const DefaultFreshnessWindow = time.Hour

// ErrConfirmationRequired is returned by StartAnalysis when recent results exist
// and the caller has not confirmed that it wants to run again.
var ErrConfirmationRequired = derrors.ConfirmationError("recent analysis data exists; confirm to start a new analysis").Build()

// Repository is the analysis service as seen by the orchestrator.
type Repository interface {
	GetStatus(ctx context.Context, project string, opts analysis.FetchOptions) (json.RawMessage, error)
	GetMetrics(ctx context.Context, project string, opts analysis.FetchOptions) (json.RawMessage, error)
	GetHistory(ctx context.Context, project string, opts analysis.FetchOptions) (json.RawMessage, error)
	GetTechStack(ctx context.Context, project string, opts analysis.FetchOptions) (json.RawMessage, error)
	GetIssues(ctx context.Context, project string, opts analysis.FetchOptions) (json.RawMessage, error)
	GetArchitecture(ctx context.Context, project string, opts analysis.FetchOptions) (json.RawMessage, error)
	GetRecommendations(ctx context.Context, project string, opts analysis.FetchOptions) (json.RawMessage, error)
	GetCharts(ctx context.Context, project, kind string, opts analysis.FetchOptions) (json.RawMessage, error)
	StartAnalysis(ctx context.Context, project string, t analysis.Type) (analysis.MutationResult, error)
	CancelStep(ctx context.Context, project, stepID string) (analysis.MutationResult, error)
	RetryStep(ctx context.Context, project, stepID string) (analysis.MutationResult, error)
}

// Orchestrator owns the per-project state.
type Orchestrator struct {
	project   string
	sessionID string
	repo      Repository
	channel   events.Channel

	cache    *cache.Store
	tracker  *jobs.Tracker
	sections *sections.Controller

	policy       retry.Policy
	freshness    time.Duration
	invalidation config.InvalidationPolicy
	cancelRemote bool
	fast         bool

	logger   *slog.Logger
	recorder metrics.Recorder
	now      func() time.Time
	flight   singleflight.Group
	onEvent  func(events.Event)

	mu            sync.Mutex
	hasRecentData bool
	epochAll      uint64
	epochs        map[analysis.DataKind]uint64
	pageErr       error
	startErrs     map[analysis.Type]error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithChannel sets the push channel consumed by Run.
func WithChannel(ch events.Channel) Option { return func(o *Orchestrator) { o.channel = ch } }

// WithCache replaces the cache store.
func WithCache(c *cache.Store) Option { return func(o *Orchestrator) { o.cache = c } }

// WithTracker replaces the job tracker.
func WithTracker(t *jobs.Tracker) Option { return func(o *Orchestrator) { o.tracker = t } }

// WithLogger sets the base logger; project and session fields are added by New.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option { return func(o *Orchestrator) { o.recorder = r } }

// WithClock overrides time.Now for freshness checks.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// WithRetryPolicy sets the schedule for retrying transient fetch errors.
func WithRetryPolicy(p retry.Policy) Option { return func(o *Orchestrator) { o.policy = p } }

// WithFreshnessWindow sets how old the latest history entry may be to count as
// recent data. Non-positive values keep the default.
func WithFreshnessWindow(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.freshness = d
		}
	}
}

// WithInvalidation selects what a completion event invalidates.
func WithInvalidation(p config.InvalidationPolicy) Option {
	return func(o *Orchestrator) { o.invalidation = p }
}

// WithRemoteCancel controls whether CancelAnalysis also calls the backend.
func WithRemoteCancel(enabled bool) Option { return func(o *Orchestrator) { o.cancelRemote = enabled } }

// OnEvent registers fn to run after each push event for the active project has been applied.
func OnEvent(fn func(events.Event)) Option { return func(o *Orchestrator) { o.onEvent = fn } }

// WithFastReads requests the lower latency endpoint variants.
func WithFastReads(enabled bool) Option { return func(o *Orchestrator) { o.fast = enabled } }

// ConfigOptions derives options from a loaded configuration.
func ConfigOptions(cfg *config.Config) []Option {
	return []Option{
		WithRetryPolicy(retry.FromConfig(cfg.Retry)),
		WithFreshnessWindow(cfg.Refresh.FreshnessWindow.Duration()),
		WithInvalidation(cfg.Refresh.Invalidation),
		WithRemoteCancel(cfg.Refresh.RemoteCancel()),
		WithFastReads(cfg.API.Fast),
	}
}

// New creates an orchestrator for project.
func New(project string, repo Repository, opts ...Option) (*Orchestrator, error) {
	if project == "" {
		return nil, derrors.ValidationError("project id is required").Build()
	}
	if repo == nil {
		return nil, derrors.ValidationError("repository is required").Build()
	}
	o := &Orchestrator{
		project:      project,
		sessionID:    uuid.NewString(),
		repo:         repo,
		policy:       retry.DefaultPolicy(),
		freshness:    DefaultFreshnessWindow,
		invalidation: config.InvalidateAll,
		cancelRemote: true,
		logger:       slog.Default(),
		now:          time.Now,
		startErrs:    make(map[analysis.Type]error),
		epochs:       make(map[analysis.DataKind]uint64),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.recorder = metrics.OrNoop(o.recorder)
	o.logger = o.logger.With(logfields.Project(project), logfields.SessionID(o.sessionID))
	if o.cache == nil {
		o.cache = cache.New(cache.WithClock(o.now), cache.WithRecorder(o.recorder))
	}
	if o.tracker == nil {
		o.tracker = jobs.NewTracker(jobs.WithLogger(o.logger), jobs.WithRecorder(o.recorder), jobs.WithClock(o.now))
	}
	o.sections = sections.NewController(sections.LoaderFunc(o.LoadCategory), o.logger)
	return o, nil
}

// Project returns the active project id.
func (o *Orchestrator) Project() string { return o.project }

// SessionID identifies this orchestrator instance in logs.
func (o *Orchestrator) SessionID() string { return o.sessionID }

// Tracker exposes the job tracker, e.g. for the fallback poll.
func (o *Orchestrator) Tracker() *jobs.Tracker { return o.tracker }

// Logger returns the session-scoped logger.
func (o *Orchestrator) Logger() *slog.Logger { return o.logger }

// Cache exposes the cache store.
func (o *Orchestrator) Cache() *cache.Store { return o.cache }

// HasRecentData reports whether the last history load found an entry inside the
// freshness window.
func (o *Orchestrator) HasRecentData() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hasRecentData
}

// PageError returns the error of the last initial load, if it failed.
func (o *Orchestrator) PageError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pageErr
}
