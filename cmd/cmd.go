// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Initialize database and run migrations",
		Action: r.Setup,
	}
}

// watchlistCommand manages the set of followed series
func watchlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "watchlist",
		Aliases: []string{"wl"},
		Usage:   "Manage followed series",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List followed series",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Include unfollowed entries",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.WatchlistList,
			},
			{
				Name:      "add",
				Usage:     "Follow a series by ID, or pick from the timeline with --interactive",
				ArgsUsage: "[series-id-or-url]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "name",
						Aliases: []string{"n"},
						Usage:   "Display name (resolved from the platform when omitted)",
					},
					&cli.BoolFlag{
						Name:    "interactive",
						Aliases: []string{"i"},
						Usage:   "Pick series from the weekly timeline",
					},
				},
				Action: r.WatchlistAdd,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Unfollow a series by ID, or pick with --interactive",
				ArgsUsage: "[series-id-or-url]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "interactive",
						Aliases: []string{"i"},
						Usage:   "Pick series from the current watchlist",
					},
				},
				Action: r.WatchlistRemove,
			},
		},
	}
}

// scheduleCommand shows the platform's weekly release timeline
func scheduleCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "schedule",
		Aliases: []string{"sched"},
		Usage:   "Show the weekly release timeline",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "today",
				Usage: "Only show today's releases",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Schedule,
	}
}

// runCommand triggers one processing cycle
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run one cycle: match new releases against the watchlist and download them",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Report what would be downloaded without fetching",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show progress in an interactive view",
			},
		},
		Action: r.Run,
	}
}

// downloadCommand fetches a single URL outside the cycle
func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "download",
		Aliases:   []string{"down", "dl", "d"},
		Usage:     "Download one episode or playlist by its play or media URL",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "episode",
				Aliases: []string{"e"},
				Usage:   "Episode number to record in the ledger",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Download even when the ledger already has a succeeded record",
			},
		},
		Action: r.Download,
	}
}

// historyCommand manages the ledger of processed episodes
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "history",
		Aliases: []string{"hist"},
		Usage:   "Inspect and manage the download ledger",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List ledger records, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "series",
						Aliases: []string{"s"},
						Usage:   "Filter by series ID",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.HistoryList,
			},
			{
				Name:  "clear",
				Usage: "Delete ledger records for one series, or everything",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "series",
						Aliases: []string{"s"},
						Usage:   "Only clear records for this series ID",
					},
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Skip the confirmation prompt",
					},
				},
				Action: r.HistoryClear,
			},
			{
				Name:  "export",
				Usage: "Export the ledger to a file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: csv, md or txt",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Base path of the export file (extension is added)",
					},
					&cli.StringFlag{
						Name:    "series",
						Aliases: []string{"s"},
						Usage:   "Filter by series ID",
					},
				},
				Action: r.HistoryExport,
			},
		},
	}
}
