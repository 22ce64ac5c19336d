package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nattadasu/bilidownloader/internal/repositories"
	"github.com/nattadasu/bilidownloader/internal/shared"
	"github.com/nattadasu/bilidownloader/internal/tasks"
	"github.com/nattadasu/bilidownloader/internal/ui"
	"github.com/urfave/cli/v3"
)

// Run executes one processing cycle and reports per-episode outcomes. The
// exit code is non-zero when any episode failed.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	db, cleanup, err := r.database()
	if err != nil {
		return err
	}
	defer cleanup()

	source := r.source
	if source == nil {
		client, err := r.scheduleClient()
		if err != nil {
			return err
		}
		source = client
	}

	engine, err := tasks.NewCycleEngine(tasks.EngineOpts{
		Watchlist: repositories.NewWatchlistRepository(db),
		History:   repositories.NewHistoryRepository(db),
		Source:    source,
		Fetcher:   r.episodeFetcher(),
		Lock:      shared.NewCycleLock(r.config.Cycle.LockPath),
		Logger:    r.logger,
		MaxAge:    r.config.Cycle.MaxAge(),
		DryRun:    cmd.Bool("dry-run"),
	})
	if err != nil {
		return err
	}

	if cmd.Bool("tui") {
		return r.runTUI(ctx, engine)
	}

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.PhaseSchedule:
				r.writePlain("📡 %s\n", update.Message)
			case tasks.PhaseMatch:
				r.writePlain("🔍 %s\n", update.Message)
			case tasks.PhaseFetch:
				r.writePlain("   [%d/%d] %s\n", update.Step, update.Total, update.Message)
			}
		}
	}()

	result, err := engine.Cycle(ctx, progressCh)
	close(progressCh)
	// Wait for the progress drain before touching the output writer again.
	<-done
	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Cycle Complete")
	if result.Reconciled > 0 {
		r.writePlain("Reconciled cursors: %d\n", result.Reconciled)
	}
	r.writePlain("Actionable episodes: %d\n", result.Actionable)
	r.writePlain("Succeeded: %d\n", result.Succeeded)
	r.writePlain("Failed: %d\n", result.Failed)
	if result.Skipped > 0 {
		r.writePlain("Skipped (dry run): %d\n", result.Skipped)
	}

	for _, outcome := range result.Outcomes {
		switch {
		case outcome.Err != nil:
			r.writePlain("  ✗ %s E%d: %v\n", outcome.Episode.Title, outcome.Episode.Episode, outcome.Err)
		case outcome.Path != "":
			r.writePlain("  ✓ %s E%d → %s\n", outcome.Episode.Title, outcome.Episode.Episode, outcome.Path)
		}
	}

	if result.HasFailures() {
		return cli.Exit(fmt.Sprintf("%d episode(s) failed", result.Failed), 1)
	}
	return nil
}

func (r *Runner) runTUI(ctx context.Context, engine *tasks.CycleEngine) error {
	model := ui.NewCycleModel(ctx, engine)
	program := tea.NewProgram(model)

	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	if cycle, ok := final.(*ui.CycleModel); ok {
		result, err := cycle.Result()
		if err != nil {
			return err
		}
		if result != nil && result.HasFailures() {
			return cli.Exit(fmt.Sprintf("%d episode(s) failed", result.Failed), 1)
		}
	}
	return nil
}
