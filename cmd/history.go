package main

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nattadasu/bilidownloader/internal/formatter"
	"github.com/nattadasu/bilidownloader/internal/repositories"
	"github.com/urfave/cli/v3"
)

// HistoryList prints ledger records, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	db, cleanup, err := r.database()
	if err != nil {
		return err
	}
	defer cleanup()

	repo := repositories.NewHistoryRepository(db)
	records, err := repo.List(cmd.String("series"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(records, true)
	}

	if len(records) == 0 {
		return r.writePlain("No episodes processed yet.\n")
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.SeriesID,
			strconv.Itoa(rec.Episode),
			string(rec.Status),
			rec.ProcessedAt.Local().Format(time.DateTime),
		})
	}

	r.writePlain("%s\n", renderTable(
		[]string{"Series", "Episode", "Status", "Processed At"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
	))
	return nil
}

// HistoryClear deletes ledger records. Cleared episodes become actionable
// again on the next cycle, so it asks for confirmation unless --yes is set.
func (r *Runner) HistoryClear(ctx context.Context, cmd *cli.Command) error {
	db, cleanup, err := r.database()
	if err != nil {
		return err
	}
	defer cleanup()

	seriesID := cmd.String("series")

	if !cmd.Bool("yes") {
		scope := "the entire history"
		if seriesID != "" {
			scope = "history for series " + seriesID
		}
		r.writePlain("This clears %s; cleared episodes will be downloaded again. Continue? [y/N] ", scope)

		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if answer = strings.TrimSpace(strings.ToLower(answer)); answer != "y" && answer != "yes" {
			return r.writePlain("Aborted.\n")
		}
	}

	repo := repositories.NewHistoryRepository(db)
	deleted, err := repo.Clear(seriesID)
	if err != nil {
		return err
	}

	r.writePlain("✓ Cleared %d record(s)\n", deleted)
	return nil
}

// HistoryExport writes the ledger to a file.
func (r *Runner) HistoryExport(ctx context.Context, cmd *cli.Command) error {
	db, cleanup, err := r.database()
	if err != nil {
		return err
	}
	defer cleanup()

	repo := repositories.NewHistoryRepository(db)
	records, err := repo.List(cmd.String("series"))
	if err != nil {
		return err
	}

	result, err := formatter.WriteHistoryExport(records, cmd.String("format"), cmd.String("output"))
	if err != nil {
		return err
	}

	r.writePlain("✓ Exported %d record(s) to %s\n", len(records), result.File)
	return nil
}
