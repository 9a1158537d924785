package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/analysisview/internal/config"
)

// Global is bound into every command's Run method.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"analysisview.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Init     InitCmd     `cmd:"" help:"Initialize a new configuration file"`
	Snapshot SnapshotCmd `cmd:"" help:"Load the project analysis once and print the view as JSON"`
	Watch    WatchCmd    `cmd:"" help:"Follow analysis events and serve the live view over HTTP"`
	Start    StartCmd    `cmd:"" help:"Start an analysis run"`
	Cancel   CancelCmd   `cmd:"" help:"Cancel an active analysis run"`
	Retry    RetryCmd    `cmd:"" help:"Retry a failed analysis run"`
}

// logLevel is shared by the process logger so a config reload can adjust verbosity.
var logLevel = new(slog.LevelVar)

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	logLevel.Set(slog.LevelInfo)
	if c.Verbose {
		logLevel.Set(slog.LevelDebug)
	}
	slog.SetDefault(newLogger(os.Stderr, config.LogFormatText))
	return nil
}

func newLogger(w io.Writer, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// applyLogging switches the default logger to the configured level and format.
// --verbose always wins over the configured level.
func applyLogging(cfg config.LoggingConfig, verbose bool) *slog.Logger {
	switch {
	case verbose:
		logLevel.Set(slog.LevelDebug)
	default:
		logLevel.Set(slogLevel(cfg.Level))
	}
	logger := newLogger(os.Stderr, cfg.Format)
	slog.SetDefault(logger)
	return logger
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
