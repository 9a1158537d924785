package sections

import (
	"context"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/analysisview/internal/aggregate"
	"git.home.luguber.info/inful/analysisview/internal/analysis"
	"git.home.luguber.info/inful/analysisview/internal/logfields"
)

// Loader fetches and normalizes the data of one category.
type Loader interface {
	LoadSection(ctx context.Context, category analysis.Type) (aggregate.Data, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, category analysis.Type) (aggregate.Data, error)

// LoadSection implements Loader.
func (f LoaderFunc) LoadSection(ctx context.Context, category analysis.Type) (aggregate.Data, error) {
	return f(ctx, category)
}

// Controller owns the section state and issues guarded fetches through its Loader.
type Controller struct {
	mu     sync.Mutex
	state  State
	loader Loader
	logger *slog.Logger
}

// NewController creates a controller. A nil logger uses slog.Default().
func NewController(loader Loader, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{loader: loader, logger: logger}
}

func (c *Controller) dispatch(a Action) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out Outcome
	c.state, out = Reduce(c.state, a)
	return out
}

// Toggle flips the expanded flag of category. When the section becomes expanded
// and has neither data nor a fetch in flight, the fetch runs before Toggle returns.
// The returned error is the fetch error, already recorded on the section.
func (c *Controller) Toggle(ctx context.Context, category analysis.Type) (Section, error) {
	c.mu.Lock()
	var out Outcome
	c.state, out = Reduce(c.state, Toggle{Category: category})
	if out.Section.Expanded {
		c.state, out = Reduce(c.state, Begin{Category: category})
	}
	c.mu.Unlock()

	if !out.Fetch {
		return out.Section, nil
	}
	return c.fetch(ctx, category, out.Section.Generation)
}

// Reload issues the guarded fetch for an expanded section that is not loaded.
// It reports whether a fetch was issued.
func (c *Controller) Reload(ctx context.Context, category analysis.Type) (bool, error) {
	out := c.dispatch(Begin{Category: category})
	if !out.Fetch {
		return false, nil
	}
	_, err := c.fetch(ctx, category, out.Section.Generation)
	return true, err
}

// Retry re-issues a failed fetch, expanding the section if needed.
func (c *Controller) Retry(ctx context.Context, category analysis.Type) (Section, error) {
	out := c.dispatch(Begin{Category: category, Force: true})
	if !out.Fetch {
		return out.Section, nil
	}
	return c.fetch(ctx, category, out.Section.Generation)
}

// MarkStale invalidates category without collapsing it.
func (c *Controller) MarkStale(category analysis.Type) Section {
	return c.dispatch(MarkStale{Category: category}).Section
}

// MarkAllStale invalidates every known category and returns those currently expanded.
func (c *Controller) MarkAllStale() []analysis.Type {
	var expanded []analysis.Type
	for _, cat := range analysis.AllTypes() {
		if c.MarkStale(cat).Expanded {
			expanded = append(expanded, cat)
		}
	}
	return expanded
}

// Section returns the current state of category.
func (c *Controller) Section(category analysis.Type) Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Section(category)
}

// Sections returns every known category's section.
func (c *Controller) Sections() map[analysis.Type]Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[analysis.Type]Section, len(analysis.AllTypes()))
	for _, cat := range analysis.AllTypes() {
		out[cat] = c.state.Section(cat)
	}
	return out
}

func (c *Controller) fetch(ctx context.Context, category analysis.Type, gen uint64) (Section, error) {
	c.logger.Debug("Loading section", logfields.Category(string(category)), logfields.Generation(gen))

	data, err := c.loader.LoadSection(ctx, category)

	var out Outcome
	if err != nil {
		out = c.dispatch(Fail{Category: category, Generation: gen, Err: err})
		if !out.Stale {
			c.logger.Warn("Section load failed", logfields.Category(string(category)), logfields.Error(err))
		}
	} else {
		out = c.dispatch(Succeed{Category: category, Generation: gen, Data: data})
	}
	if out.Stale {
		c.logger.Debug("Discarded stale section result", logfields.Category(string(category)), logfields.Generation(gen))
	}
	return out.Section, err
}
