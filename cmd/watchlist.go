package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/nattadasu/bilidownloader/internal/repositories"
	"github.com/nattadasu/bilidownloader/internal/schedule"
	"github.com/nattadasu/bilidownloader/internal/shared"
	"github.com/nattadasu/bilidownloader/internal/ui"
	"github.com/urfave/cli/v3"
)

// WatchlistList prints followed series.
func (r *Runner) WatchlistList(ctx context.Context, cmd *cli.Command) error {
	db, cleanup, err := r.database()
	if err != nil {
		return err
	}
	defer cleanup()

	repo := repositories.NewWatchlistRepository(db)
	entries, err := repo.List(!cmd.Bool("all"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(entries, true)
	}

	if len(entries) == 0 {
		return r.writePlain("No series followed yet. Try 'bilidl watchlist add --interactive'.\n")
	}

	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		cursor := "-"
		if entry.LastKnownEpisode != nil {
			cursor = strconv.Itoa(*entry.LastKnownEpisode)
		}
		active := "yes"
		if !entry.Active {
			active = "no"
		}
		rows = append(rows, []string{entry.SeriesID, entry.DisplayName, cursor, active})
	}

	r.writePlain("%s\n", renderTable(
		[]string{"Series", "Name", "Last Episode", "Active"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}

// WatchlistAdd follows one or more series.
func (r *Runner) WatchlistAdd(ctx context.Context, cmd *cli.Command) error {
	db, cleanup, err := r.database()
	if err != nil {
		return err
	}
	defer cleanup()

	repo := repositories.NewWatchlistRepository(db)

	if cmd.Bool("interactive") {
		return r.watchlistAddInteractive(ctx, repo)
	}

	arg := cmd.Args().First()
	if arg == "" {
		return fmt.Errorf("%w: series ID or URL (or --interactive)", shared.ErrMissingArgument)
	}
	seriesID, ok := schedule.ParseSeriesID(arg)
	if !ok {
		return fmt.Errorf("%w: %q is not a series ID or URL", shared.ErrInvalidArgument, arg)
	}

	name := cmd.String("name")
	if name == "" {
		client, err := r.scheduleClient()
		if err != nil {
			return err
		}
		if title, err := client.SeriesTitle(ctx, seriesID); err == nil {
			name = title
		} else {
			r.logger.Warn("failed to resolve series title", "series", seriesID, "error", err)
			name = seriesID
		}
	}

	entry, err := repo.Add(seriesID, name)
	if err != nil {
		if errors.Is(err, shared.ErrDuplicateEntry) {
			return fmt.Errorf("already following %s", seriesID)
		}
		return err
	}

	r.writePlain("✓ Following %s (%s)\n", entry.DisplayName, entry.SeriesID)
	return nil
}

func (r *Runner) watchlistAddInteractive(ctx context.Context, repo *repositories.WatchlistRepository) error {
	client, err := r.scheduleClient()
	if err != nil {
		return err
	}

	series, err := client.AllSeries(ctx)
	if err != nil {
		return err
	}

	watching, err := repo.List(true)
	if err != nil {
		return err
	}
	followed := make(map[string]bool, len(watching))
	for _, entry := range watching {
		followed[entry.SeriesID] = true
	}

	choices := make([]ui.Choice, 0, len(series))
	for _, s := range series {
		if followed[s.ID] {
			continue
		}
		choices = append(choices, ui.Choice{ID: s.ID, Title: s.Title, Detail: s.ID})
	}
	if len(choices) == 0 {
		return r.writePlain("Every series on this week's timeline is already followed.\n")
	}

	picked, err := ui.PickMany("Follow series", choices)
	if err != nil {
		return err
	}
	if len(picked) == 0 {
		return r.writePlain("Nothing selected.\n")
	}

	for _, choice := range picked {
		entry, err := repo.Add(choice.ID, choice.Title)
		if err != nil {
			r.logger.Error("failed to follow series", "series", choice.ID, "error", err)
			continue
		}
		r.writePlain("✓ Following %s (%s)\n", entry.DisplayName, entry.SeriesID)
	}
	return nil
}

// WatchlistRemove unfollows one or more series.
func (r *Runner) WatchlistRemove(ctx context.Context, cmd *cli.Command) error {
	db, cleanup, err := r.database()
	if err != nil {
		return err
	}
	defer cleanup()

	repo := repositories.NewWatchlistRepository(db)

	if cmd.Bool("interactive") {
		watching, err := repo.List(true)
		if err != nil {
			return err
		}
		if len(watching) == 0 {
			return r.writePlain("No series followed yet.\n")
		}

		choices := make([]ui.Choice, 0, len(watching))
		for _, entry := range watching {
			choices = append(choices, ui.Choice{ID: entry.SeriesID, Title: entry.DisplayName, Detail: entry.SeriesID})
		}

		picked, err := ui.PickMany("Unfollow series", choices)
		if err != nil {
			return err
		}
		if len(picked) == 0 {
			return r.writePlain("Nothing selected.\n")
		}

		for _, choice := range picked {
			if err := repo.Remove(choice.ID); err != nil {
				r.logger.Error("failed to unfollow series", "series", choice.ID, "error", err)
				continue
			}
			r.writePlain("✓ Unfollowed %s (%s)\n", choice.Title, choice.ID)
		}
		return nil
	}

	arg := cmd.Args().First()
	if arg == "" {
		return fmt.Errorf("%w: series ID or URL (or --interactive)", shared.ErrMissingArgument)
	}
	seriesID, ok := schedule.ParseSeriesID(arg)
	if !ok {
		return fmt.Errorf("%w: %q is not a series ID or URL", shared.ErrInvalidArgument, arg)
	}

	if err := repo.Remove(seriesID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("not following %s", seriesID)
		}
		return err
	}

	r.writePlain("✓ Unfollowed %s\n", seriesID)
	return nil
}
