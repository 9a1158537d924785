package commands

import (
	"context"
	"log/slog"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
	"git.home.luguber.info/inful/analysisview/internal/client"
	"git.home.luguber.info/inful/analysisview/internal/config"
	"git.home.luguber.info/inful/analysisview/internal/events"
	"git.home.luguber.info/inful/analysisview/internal/events/natschan"
	"git.home.luguber.info/inful/analysisview/internal/events/ssechan"
	"git.home.luguber.info/inful/analysisview/internal/events/wschan"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
	"git.home.luguber.info/inful/analysisview/internal/logfields"
	"git.home.luguber.info/inful/analysisview/internal/metrics"
	"git.home.luguber.info/inful/analysisview/internal/orchestrator"
	"git.home.luguber.info/inful/analysisview/internal/retry"
)

// runtime holds everything a command needs to talk to one project.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *client.Client
	registry *prom.Registry
	channel  events.Channel
	orch     *orchestrator.Orchestrator
	closers  []func()
}

// newRuntime loads the configuration and builds the orchestrator. The push
// channel is only created when withChannel is set; one-shot commands do not
// subscribe.
func newRuntime(root *CLI, withChannel bool) (*runtime, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	return buildRuntime(cfg, root.Verbose, withChannel)
}

func buildRuntime(cfg *config.Config, verbose, withChannel bool, extra ...orchestrator.Option) (*runtime, error) {
	logger := applyLogging(cfg.Logging, verbose)
	rt := &runtime{cfg: cfg, logger: logger}

	c, err := client.New(cfg.API.BaseURL, client.WithToken(cfg.API.Token), client.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	rt.client = c

	opts := orchestrator.ConfigOptions(cfg)
	opts = append(opts, orchestrator.WithLogger(logger))
	if cfg.Metrics.Enabled {
		rt.registry = prom.NewRegistry()
		opts = append(opts, orchestrator.WithRecorder(metrics.NewPrometheusRecorder(rt.registry)))
	}

	if withChannel {
		ch, closeChannel, err := NewChannel(cfg, retry.FromConfig(cfg.Retry), logger)
		if err != nil {
			return nil, err
		}
		rt.channel = ch
		if closeChannel != nil {
			rt.closers = append(rt.closers, closeChannel)
		}
		opts = append(opts, orchestrator.WithChannel(ch))
	}

	orch, err := orchestrator.New(cfg.Project, c, append(opts, extra...)...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.orch = orch
	return rt, nil
}

// Close releases the push channel connection, if any.
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// load runs the initial batch. A page error is logged and returned.
func (r *runtime) load(ctx context.Context) error {
	if err := r.orch.InitialLoad(ctx); err != nil {
		r.logger.Error("Initial load failed", logfields.Project(r.cfg.Project), logfields.Error(err))
		return err
	}
	return nil
}

// NewChannel builds the push channel for the configured transport. The returned
// close function is nil when the channel holds no connection of its own.
func NewChannel(cfg *config.Config, policy retry.Policy, logger *slog.Logger) (events.Channel, func(), error) {
	switch cfg.Events.Transport {
	case config.TransportSSE:
		return ssechan.New(cfg.Events.URL,
			ssechan.WithToken(cfg.API.Token),
			ssechan.WithRetryPolicy(policy),
			ssechan.WithLogger(logger),
		), nil, nil
	case config.TransportWebSocket:
		return wschan.New(cfg.Events.URL,
			wschan.WithToken(cfg.API.Token),
			wschan.WithRetryPolicy(policy),
			wschan.WithLogger(logger),
		), nil, nil
	case config.TransportNATS:
		ch, err := natschan.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			return nil, nil, err
		}
		return ch, ch.Close, nil
	case config.TransportLocal:
		return events.NewLocalChannel(nil, cfg.Events.Buffer, logger), nil, nil
	default:
		return nil, nil, derrors.ConfigError("unsupported event transport").
			WithContext("transport", string(cfg.Events.Transport)).Build()
	}
}

// parseType validates a command-line analysis type.
func parseType(raw string) (analysis.Type, error) {
	t, ok := analysis.ParseType(raw)
	if !ok {
		return "", derrors.ValidationError("unknown analysis type").
			WithContext("type", raw).Build()
	}
	return t, nil
}
