package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/analysisview/internal/aggregate"
	"git.home.luguber.info/inful/analysisview/internal/analysis"
	"git.home.luguber.info/inful/analysisview/internal/events"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
	"git.home.luguber.info/inful/analysisview/internal/logfields"
	"git.home.luguber.info/inful/analysisview/internal/metrics"
)

const chartPrefix = "charts:"

// InitialLoad fetches the batch every page needs in parallel. Each success is
// cached even when a sibling fails; any failure becomes the page error, which
// RetryInitialLoad clears. Lazily loaded categories are not touched.
func (o *Orchestrator) InitialLoad(ctx context.Context) error {
	token := o.tracker.PollToken()
	var g errgroup.Group
	for _, kind := range analysis.InitialBatch() {
		g.Go(func() error {
			raw, err := o.fetch(ctx, kind, true)
			if err != nil {
				if kind == analysis.KindHistory {
					o.mu.Lock()
					o.hasRecentData = false
					o.mu.Unlock()
				}
				return derrors.WrapError(err, derrors.GetCategory(err), "initial load failed").
					WithContext("data_kind", string(kind)).
					WithRetryAction("RetryInitialLoad").
					Build()
			}
			switch kind {
			case analysis.KindHistory:
				recent := aggregate.IsRecent(raw, o.now(), o.freshness)
				o.mu.Lock()
				o.hasRecentData = recent
				o.mu.Unlock()
			case analysis.KindStatus:
				o.seedJobs(token, raw)
			}
			return nil
		})
	}
	err := g.Wait()

	o.mu.Lock()
	o.pageErr = err
	o.mu.Unlock()
	if err != nil {
		o.logger.Error("Initial load failed", logfields.Error(err))
		return err
	}
	o.logger.Info("Initial load complete", slog.Bool("has_recent_data", o.HasRecentData()))
	return nil
}

// RetryInitialLoad re-runs the initial batch after a page-level failure.
func (o *Orchestrator) RetryInitialLoad(ctx context.Context) error {
	return o.InitialLoad(ctx)
}

// LoadCategory returns the normalized data of category, reusing a cached payload
// when one exists. A failure is local to the category.
func (o *Orchestrator) LoadCategory(ctx context.Context, category analysis.Type) (aggregate.Data, error) {
	if !category.Valid() {
		return aggregate.Empty(), derrors.ValidationError("unknown analysis category").WithContext("category", string(category)).Build()
	}
	raw, err := o.fetch(ctx, category.DataKind(), false)
	if err != nil {
		o.logger.Warn("Category load failed", logfields.Category(string(category)), logfields.Error(err))
		return aggregate.Empty(), err
	}
	return aggregate.NormalizeJSON(raw, category), nil
}

// LoadCharts returns the chart series named kind, cached under charts:<kind>.
func (o *Orchestrator) LoadCharts(ctx context.Context, kind string) (json.RawMessage, error) {
	return o.fetch(ctx, analysis.ChartKind(kind), false)
}

// fetch returns the payload of kind. Without force a cached payload is returned
// as is. Concurrent fetches of the same kind share one request, unless the kind
// was invalidated in between: a request issued before an invalidation is never
// joined by later callers and its payload is not cached.
func (o *Orchestrator) fetch(ctx context.Context, kind analysis.DataKind, force bool) (json.RawMessage, error) {
	if !force {
		if cached, ok := o.cache.Get(o.project, kind); ok {
			if raw, ok := cached.(json.RawMessage); ok {
				return raw, nil
			}
		}
	}

	epoch := o.epoch(kind)
	v, err, shared := o.flight.Do(fmt.Sprintf("%s@%d", kind, epoch), func() (any, error) {
		start := time.Now()
		var raw json.RawMessage
		err := o.policy.Do(ctx, func(ctx context.Context) error {
			var err error
			raw, err = o.request(ctx, kind)
			return err
		}, derrors.IsTransient, func(attempt int, delay time.Duration, err error) {
			o.recorder.IncFetchRetry(string(kind))
			o.logger.Warn("Retrying fetch",
				logfields.DataKind(string(kind)),
				logfields.Attempt(attempt),
				logfields.Error(err),
				logfields.DurationMS(float64(delay.Milliseconds())))
		})
		if err != nil {
			o.recorder.ObserveFetchDuration(string(kind), time.Since(start), metrics.ResultFailed)
			return nil, err
		}
		o.recorder.ObserveFetchDuration(string(kind), time.Since(start), metrics.ResultSuccess)
		if !o.storeIfCurrent(kind, epoch, raw) {
			o.logger.Debug("Discarding payload fetched before invalidation", logfields.DataKind(string(kind)))
		}
		return raw, nil
	})
	if shared {
		o.logger.Debug("Joined in-flight fetch", logfields.DataKind(string(kind)))
	}
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// epoch returns the invalidation generation of kind.
func (o *Orchestrator) epoch(kind analysis.DataKind) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.epochAll + o.epochs[kind]
}

// storeIfCurrent caches raw unless kind was invalidated after epoch was read.
func (o *Orchestrator) storeIfCurrent(kind analysis.DataKind, epoch uint64, raw json.RawMessage) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epochAll+o.epochs[kind] != epoch {
		return false
	}
	o.cache.Set(o.project, kind, raw)
	return true
}

// invalidate drops the cached payload of kind and detaches in-flight requests for it.
func (o *Orchestrator) invalidate(kind analysis.DataKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.epochs[kind]++
	o.cache.Invalidate(o.project, kind)
}

// invalidateAll is invalidate for every kind of the active project.
func (o *Orchestrator) invalidateAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.epochAll++
	o.cache.InvalidateAll(o.project)
}

func (o *Orchestrator) request(ctx context.Context, kind analysis.DataKind) (json.RawMessage, error) {
	opts := analysis.FetchOptions{Fast: o.fast}
	switch kind {
	case analysis.KindStatus:
		return o.repo.GetStatus(ctx, o.project, opts)
	case analysis.KindMetrics:
		return o.repo.GetMetrics(ctx, o.project, opts)
	case analysis.KindHistory:
		return o.repo.GetHistory(ctx, o.project, opts)
	case analysis.KindTechStack:
		return o.repo.GetTechStack(ctx, o.project, opts)
	case analysis.KindIssues:
		return o.repo.GetIssues(ctx, o.project, opts)
	case analysis.KindArchitecture:
		return o.repo.GetArchitecture(ctx, o.project, opts)
	case analysis.KindRecommendations:
		return o.repo.GetRecommendations(ctx, o.project, opts)
	}
	if chart, ok := strings.CutPrefix(string(kind), chartPrefix); ok {
		return o.repo.GetCharts(ctx, o.project, chart, opts)
	}
	return nil, derrors.InternalError("no endpoint for data kind").WithContext("data_kind", string(kind)).Build()
}

// seedJobs applies the status payload of the initial batch as if it were a poll
// issued at token.
func (o *Orchestrator) seedJobs(token uint64, raw json.RawMessage) {
	entries, err := events.StatusSnapshot(raw)
	if err != nil {
		o.logger.Debug("Status payload not usable for job state", logfields.Error(err))
		return
	}
	o.tracker.ApplyPollSnapshot(token, entries)
}
