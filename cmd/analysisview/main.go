package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/analysisview/cmd/analysisview/commands"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
	"git.home.luguber.info/inful/analysisview/internal/version"
)

func main() {
	var cli commands.CLI
	global := &commands.Global{}
	ctx := kong.Parse(&cli,
		kong.Name("analysisview"),
		kong.Description("Follow the analysis state of a project: sections, running jobs and live events."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)
	global.Logger = slog.Default()

	if err := ctx.Run(global, &cli); err != nil {
		// Commands may have replaced the default logger with the configured one.
		derrors.NewCLIErrorAdapter(cli.Verbose, nil).HandleError(err)
		os.Exit(1)
	}
}
