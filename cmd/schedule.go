package main

import (
	"context"

	"github.com/urfave/cli/v3"
)

// Schedule prints the platform's weekly release timeline.
func (r *Runner) Schedule(ctx context.Context, cmd *cli.Command) error {
	client, err := r.scheduleClient()
	if err != nil {
		return err
	}

	week, err := client.Week(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("today") {
		filtered := week[:0]
		for _, day := range week {
			if day.IsToday {
				filtered = append(filtered, day)
			}
		}
		week = filtered
	}

	if cmd.Bool("json") {
		return r.writeJSON(week, true)
	}

	for _, day := range week {
		title := day.Name
		if day.Date != "" {
			title += " · " + day.Date
		}
		if day.IsToday {
			title += " (today)"
		}
		r.writePlainHeader(title)

		if len(day.Cards) == 0 {
			r.writePlain("No releases.\n")
			continue
		}

		rows := make([][]string, 0, len(day.Cards))
		for _, card := range day.Cards {
			state := card.AirTime
			if card.Released {
				state = "out"
			}
			rows = append(rows, []string{card.SeriesID, card.Title, card.IndexShow, state})
		}
		r.writePlain("%s\n", renderTable(
			[]string{"Series", "Title", "Episode", "When"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
		))
	}

	return nil
}
