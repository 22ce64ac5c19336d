package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nattadasu/bilidownloader/internal/models"
	"github.com/nattadasu/bilidownloader/internal/repositories"
	"github.com/nattadasu/bilidownloader/internal/schedule"
	"github.com/nattadasu/bilidownloader/internal/shared"
	"github.com/urfave/cli/v3"
)

// Download fetches a single play or media URL outside the cycle, recording
// the outcome in the ledger like any cycle download. The series does not
// need to be on the watchlist.
func (r *Runner) Download(ctx context.Context, cmd *cli.Command) error {
	locator := cmd.Args().First()
	if locator == "" {
		return fmt.Errorf("%w: play or media URL", shared.ErrMissingArgument)
	}
	seriesID, ok := schedule.ParseSeriesID(locator)
	if !ok {
		return fmt.Errorf("%w: %q is not a series ID or URL", shared.ErrInvalidArgument, locator)
	}

	db, cleanup, err := r.database()
	if err != nil {
		return err
	}
	defer cleanup()

	history := repositories.NewHistoryRepository(db)
	episode := cmd.Int("episode")

	// Dedup needs an episode number; without one the ledger is checked by
	// key (series, 0) so repeated bare-URL downloads still dedup.
	if !cmd.Bool("force") {
		record, err := history.Get(seriesID, episode)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if record != nil && record.Status == models.StatusSucceeded {
			return fmt.Errorf("%w: already downloaded, rerun with --force", shared.ErrDuplicateEntry)
		}
	}

	r.writePlain("⬇ Fetching %s\n", locator)
	meta, fetchErr := r.episodeFetcher().Fetch(ctx, locator)

	record := &models.HistoryRecord{
		SeriesID:    seriesID,
		Episode:     episode,
		Locator:     locator,
		Status:      models.StatusSucceeded,
		ProcessedAt: time.Now().UTC(),
	}
	if fetchErr != nil {
		record.Status = models.StatusFailed
	}
	if err := history.Record(record); err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}

	if fetchErr != nil {
		r.writePlain("✗ %s: %v\n", locator, fetchErr)
		return cli.Exit("download failed", 1)
	}
	r.writePlain("✓ Saved to %s\n", meta.Path)
	return nil
}
