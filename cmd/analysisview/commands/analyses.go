package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"git.home.luguber.info/inful/analysisview/internal/logfields"
	"git.home.luguber.info/inful/analysisview/internal/orchestrator"
)

// StartCmd implements the 'start' command.
type StartCmd struct {
	Type    string        `arg:"" help:"Analysis type (e.g. security, tech-stack, code-quality)"`
	Yes     bool          `short:"y" help:"Start even when recent analysis data exists"`
	Timeout time.Duration `help:"Overall timeout for the request" default:"30s"`
}

func (s *StartCmd) Run(_ *Global, root *CLI) error {
	return runMutation(root, s.Timeout, func(ctx context.Context, orch *orchestrator.Orchestrator) error {
		return RunStart(ctx, orch, s.Type, s.Yes, os.Stdout)
	})
}

// RunStart starts an analysis of the given type. Without confirmation a start
// is refused while the project holds recent results.
func RunStart(ctx context.Context, orch *orchestrator.Orchestrator, rawType string, confirmed bool, w io.Writer) error {
	t, err := parseType(rawType)
	if err != nil {
		return err
	}
	if err := orch.StartAnalysis(ctx, t, confirmed); err != nil {
		return err
	}
	job, _ := orch.Tracker().Job(t)
	if job.ID != "" {
		_, _ = fmt.Fprintf(w, "Started %s analysis (job %s)\n", t.Label(), job.ID)
		return nil
	}
	_, _ = fmt.Fprintf(w, "Started %s analysis\n", t.Label())
	return nil
}

// CancelCmd implements the 'cancel' command.
type CancelCmd struct {
	Type    string        `arg:"" help:"Analysis type to cancel"`
	Timeout time.Duration `help:"Overall timeout for the request" default:"30s"`
}

func (c *CancelCmd) Run(_ *Global, root *CLI) error {
	return runMutation(root, c.Timeout, func(ctx context.Context, orch *orchestrator.Orchestrator) error {
		return RunCancel(ctx, orch, c.Type, os.Stdout)
	})
}

// RunCancel cancels the tracked job of the given type.
func RunCancel(ctx context.Context, orch *orchestrator.Orchestrator, rawType string, w io.Writer) error {
	t, err := parseType(rawType)
	if err != nil {
		return err
	}
	removed, err := orch.CancelAnalysis(ctx, t)
	switch {
	case !removed:
		_, _ = fmt.Fprintf(w, "No tracked %s analysis\n", t.Label())
	case err != nil:
		_, _ = fmt.Fprintf(w, "Stopped tracking %s analysis; remote cancel failed\n", t.Label())
	default:
		_, _ = fmt.Fprintf(w, "Cancelled %s analysis\n", t.Label())
	}
	return err
}

// RetryCmd implements the 'retry' command.
type RetryCmd struct {
	Type    string        `arg:"" help:"Analysis type to retry"`
	Timeout time.Duration `help:"Overall timeout for the request" default:"30s"`
}

func (r *RetryCmd) Run(_ *Global, root *CLI) error {
	return runMutation(root, r.Timeout, func(ctx context.Context, orch *orchestrator.Orchestrator) error {
		return RunRetry(ctx, orch, r.Type, os.Stdout)
	})
}

// RunRetry retries the failed step of a job, or starts a new run.
func RunRetry(ctx context.Context, orch *orchestrator.Orchestrator, rawType string, w io.Writer) error {
	t, err := parseType(rawType)
	if err != nil {
		return err
	}
	if err := orch.RetryAnalysis(ctx, t); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "Retrying %s analysis\n", t.Label())
	return nil
}

// runMutation loads the project once so job IDs and recent-data state are known,
// then runs fn.
func runMutation(root *CLI, timeout time.Duration, fn func(context.Context, *orchestrator.Orchestrator) error) error {
	rt, err := newRuntime(root, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := rt.load(ctx); err != nil {
		return err
	}
	if err := fn(ctx, rt.orch); err != nil {
		rt.logger.Debug("Command failed", logfields.Project(rt.cfg.Project), logfields.Error(err))
		return err
	}
	return nil
}
