package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
	"git.home.luguber.info/inful/analysisview/internal/api"
	"git.home.luguber.info/inful/analysisview/internal/config"
	"git.home.luguber.info/inful/analysisview/internal/events"
	"git.home.luguber.info/inful/analysisview/internal/logfields"
	"git.home.luguber.info/inful/analysisview/internal/orchestrator"
	"git.home.luguber.info/inful/analysisview/internal/poll"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Listen        string        `short:"l" help:"HTTP listen address for the view API (defaults to metrics.listen)"`
	Expand        []string      `short:"e" help:"Analysis categories to expand on start" sep:","`
	NoConfigWatch bool          `name:"no-config-watch" help:"Do not reload logging settings when the config file changes"`
	StopTimeout   time.Duration `help:"Graceful shutdown timeout" default:"10s"`
}

func (w *WatchCmd) Run(_ *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return w.run(ctx, root)
}

func (w *WatchCmd) run(ctx context.Context, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var srv *api.Server
	publish := func() {
		if srv != nil {
			srv.PublishView()
		}
	}
	rt, err := buildRuntime(cfg, root.Verbose, true,
		orchestrator.OnEvent(func(events.Event) { publish() }))
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.orch.Logger()

	// A failed initial load is shown in the view and retried by the next refresh.
	_ = rt.load(ctx)
	for _, raw := range w.Expand {
		t, err := parseType(raw)
		if err != nil {
			return err
		}
		if _, err := rt.orch.ToggleSection(ctx, t); err != nil {
			logger.Warn("Section load failed", logfields.Category(string(t)), logfields.Error(err))
		}
	}

	listen := w.Listen
	if listen == "" {
		listen = cfg.Metrics.Listen
	}
	srv = api.NewServer(listen, rt.orch, api.WithRegistry(rt.registry), api.WithLogger(logger))

	if cfg.Poll.Enabled {
		poller, err := poll.New(rt.client, rt.orch.Tracker(), cfg.Project,
			poll.WithLogger(logger),
			poll.WithInterval(cfg.Poll.Interval.Duration()),
			poll.OnApplied(func([]analysis.Type) { publish() }),
		)
		if err != nil {
			return err
		}
		if err := poller.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := poller.Stop(); err != nil {
				logger.Warn("Failed to stop status poll", logfields.Error(err))
			}
		}()
	}

	if !w.NoConfigWatch {
		watcher, err := config.NewWatcher(root.Config, reloadLogging(root.Verbose, logger), logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = watcher.Stop() }()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.orch.Run(gctx) })
	g.Go(func() error {
		logger.Info("Serving analysis view", "addr", listen)
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), w.StopTimeout)
		defer stopCancel()
		return srv.Shutdown(stopCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Stopped")
	return nil
}

// reloadLogging applies the logging section of a reloaded config. Other
// settings need a restart.
func reloadLogging(verbose bool, logger *slog.Logger) config.ReloadFunc {
	return func(_ context.Context, cfg *config.Config) error {
		if verbose {
			return nil
		}
		logLevel.Set(slogLevel(cfg.Logging.Level))
		logger.Info("Configuration reloaded", "level", string(cfg.Logging.Level))
		return nil
	}
}
