package main

import (
	"context"
	"errors"
	"os"

	"github.com/nattadasu/bilidownloader/internal/shared"
	"github.com/urfave/cli/v3"
)

// newRootCommand wires the CLI tree around the runner. The --config flag is
// persistent, so every subcommand honors a custom config path.
func newRootCommand(runner *Runner) *cli.Command {
	return &cli.Command{
		Name:    "bilidl",
		Usage:   "Track and download new episodes of followed series",
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			path := cmd.String("config")
			if _, err := os.Stat(path); err != nil {
				// A missing file is fine; setup creates it on demand and
				// everything else runs on defaults.
				return ctx, nil
			}
			config, err := shared.LoadConfig(path)
			if err != nil {
				runner.logger.Warn("failed to load config, using defaults", "path", path, "error", err)
				return ctx, nil
			}
			runner.setConfig(config)
			return ctx, nil
		},
		Commands: runner.register(),
	}
}

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	if err := newRootCommand(runner).Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			logger.Warn("another cycle is already running")
			os.Exit(2)
		}
		logger.Fatalf("application error: %v", err)
	}
}
