// Package poll re-derives job status from the status endpoint on a fixed interval,
// covering periods where the push channel cannot be trusted.
package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
	"git.home.luguber.info/inful/analysisview/internal/events"
	"git.home.luguber.info/inful/analysisview/internal/jobs"
	"git.home.luguber.info/inful/analysisview/internal/logfields"
)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 30 * time.Second

// StatusSource fetches the coarse status snapshot for a project.
type StatusSource interface {
	GetStatus(ctx context.Context, project string, opts analysis.FetchOptions) (json.RawMessage, error)
}

// Poller runs the fallback status poll for one project.
type Poller struct {
	scheduler gocron.Scheduler
	source    StatusSource
	tracker   *jobs.Tracker
	project   string
	interval  time.Duration
	logger    *slog.Logger
	onApplied func([]analysis.Type)
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Poller) { p.logger = l } }

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// OnApplied registers a callback for types whose status the poll changed.
func OnApplied(fn func([]analysis.Type)) Option { return func(p *Poller) { p.onApplied = fn } }

// New creates a poller. It does nothing until Start is called.
func New(source StatusSource, tracker *jobs.Tracker, project string, opts ...Option) (*Poller, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	p := &Poller{
		scheduler: s,
		source:    source,
		tracker:   tracker,
		project:   project,
		interval:  DefaultInterval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start schedules the poll. The first run happens one interval after Start.
func (p *Poller) Start(ctx context.Context) error {
	_, err := p.scheduler.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(p.run, ctx),
		gocron.WithName("status-poll"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create status poll job: %w", err)
	}
	p.logger.Info("Starting status poll", logfields.Project(p.project), slog.Duration("interval", p.interval))
	p.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down and waits for a running poll to finish.
func (p *Poller) Stop() error {
	return p.scheduler.Shutdown()
}

func (p *Poller) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := p.PollOnce(ctx); err != nil {
		p.logger.Warn("Status poll failed", logfields.Project(p.project), logfields.Error(err))
	}
}

// PollOnce fetches one snapshot and applies it. The push sequence is captured
// before the request so that events arriving while it is in flight win.
func (p *Poller) PollOnce(ctx context.Context) ([]analysis.Type, error) {
	token := p.tracker.PollToken()
	raw, err := p.source.GetStatus(ctx, p.project, analysis.FetchOptions{Fast: true})
	if err != nil {
		return nil, err
	}
	entries, err := events.StatusSnapshot(raw)
	if err != nil {
		return nil, err
	}
	applied := p.tracker.ApplyPollSnapshot(token, entries)
	if len(applied) > 0 {
		p.logger.Debug("Status poll applied", logfields.Project(p.project), slog.Int("types", len(applied)))
		if p.onApplied != nil {
			p.onApplied(applied)
		}
	}
	return applied, nil
}
