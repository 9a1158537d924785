package commands

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"git.home.luguber.info/inful/analysisview/internal/logfields"
	"git.home.luguber.info/inful/analysisview/internal/orchestrator"
)

// SnapshotCmd implements the 'snapshot' command.
type SnapshotCmd struct {
	Expand  []string      `short:"e" help:"Analysis categories to expand and load (e.g. security,tech-stack)" sep:","`
	Charts  []string      `help:"Chart kinds to include" sep:","`
	Timeout time.Duration `help:"Overall timeout for the snapshot" default:"60s"`
}

// snapshotOutput is the printed document: the view plus any requested charts.
type snapshotOutput struct {
	orchestrator.View
	Charts map[string]json.RawMessage `json:"charts,omitempty"`
}

func (s *SnapshotCmd) Run(_ *Global, root *CLI) error {
	rt, err := newRuntime(root, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()
	return RunSnapshot(ctx, rt.orch, s.Expand, s.Charts, os.Stdout)
}

// RunSnapshot loads the initial batch, expands the requested sections and writes
// the resulting view to w. A failed initial load is reported inside the view.
func RunSnapshot(ctx context.Context, orch *orchestrator.Orchestrator, expand, charts []string, w io.Writer) error {
	logger := orch.Logger()
	if err := orch.InitialLoad(ctx); err != nil {
		logger.Warn("Initial load failed", logfields.Error(err))
	}

	for _, raw := range expand {
		t, err := parseType(raw)
		if err != nil {
			return err
		}
		if _, err := orch.ToggleSection(ctx, t); err != nil {
			logger.Warn("Section load failed", logfields.Category(string(t)), logfields.Error(err))
		}
	}

	out := snapshotOutput{}
	for _, kind := range charts {
		data, err := orch.LoadCharts(ctx, kind)
		if err != nil {
			logger.Warn("Chart load failed", "chart", kind, logfields.Error(err))
			continue
		}
		if out.Charts == nil {
			out.Charts = make(map[string]json.RawMessage)
		}
		out.Charts[kind] = data
	}
	out.View = orch.View()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
