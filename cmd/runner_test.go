package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nattadasu/bilidownloader/internal/models"
	"github.com/nattadasu/bilidownloader/internal/repositories"
	"github.com/nattadasu/bilidownloader/internal/shared"
	"github.com/nattadasu/bilidownloader/internal/tasks"
	tu "github.com/nattadasu/bilidownloader/internal/testing"
	"github.com/urfave/cli/v3"
)

// stubSource returns a fixed schedule snapshot for command tests.
type stubSource struct {
	entries []models.ReleaseEntry
}

func (s *stubSource) Releases(ctx context.Context, maxAge time.Duration) ([]models.ReleaseEntry, error) {
	return s.entries, nil
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

// testRunner builds a Runner over an in-memory database with quiet logging
// and a buffer for output.
func testRunner(t *testing.T, opts RunnerOpts) (*Runner, *bytes.Buffer) {
	t.Helper()

	output := &bytes.Buffer{}
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
		opts.Config.Cycle.LockPath = filepath.Join(t.TempDir(), "cycle.lock")
	}
	if opts.DB == nil {
		opts.DB = testDB(t)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	opts.Output = output

	return NewRunner(opts), output
}

// invoke runs one CLI invocation against the runner's command tree.
func invoke(t *testing.T, r *Runner, args ...string) error {
	t.Helper()

	app := newRootCommand(r)
	// Return exit-coded errors instead of terminating the test binary.
	app.ExitErrHandler = func(context.Context, *cli.Command, error) {}
	return app.Run(context.Background(), append([]string{"bilidl"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})
	})

	t.Run("writePlain propagates write failures", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
		if err := runner.writePlain("hello"); err == nil {
			t.Error("expected write error")
		}
	})

	t.Run("writeJSON writes valid output", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writeJSON(map[string]int{"episodes": 3}, false); err != nil {
			t.Fatalf("writeJSON failed: %v", err)
		}
		if !strings.Contains(output.String(), `"episodes":3`) {
			t.Errorf("unexpected JSON output: %s", output.String())
		}
	})
}

func TestConfigFlag(t *testing.T) {
	t.Run("custom path is honored by every command", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.toml")
		if err := os.WriteFile(path, []byte("[database]\npath = \"custom.db\"\n"), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		runner, _ := testRunner(t, RunnerOpts{})
		if err := invoke(t, runner, "--config", path, "watchlist", "list"); err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if runner.config.Database.Path != "custom.db" {
			t.Errorf("expected custom config to be loaded, got %+v", runner.config.Database)
		}
	})

	t.Run("missing default path keeps defaults", func(t *testing.T) {
		runner, _ := testRunner(t, RunnerOpts{})
		before := runner.config

		if err := invoke(t, runner, "watchlist", "list"); err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if runner.config != before {
			t.Error("config must stay untouched when no config file exists")
		}
	})

	t.Run("setup initializes the configured database", func(t *testing.T) {
		dir := t.TempDir()
		cfgPath := filepath.Join(dir, "bilidl.toml")
		dbPath := filepath.Join(dir, "state.db")
		body := fmt.Sprintf("[database]\npath = %q\nmax_open_conns = 1\nmax_idle_conns = 1\n", dbPath)
		if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		runner, _ := testRunner(t, RunnerOpts{})
		if err := invoke(t, runner, "--config", cfgPath, "setup"); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		tu.AssertFileExists(t, dbPath)
	})
}

func TestWatchlistCommands(t *testing.T) {
	t.Run("add then list", func(t *testing.T) {
		runner, output := testRunner(t, RunnerOpts{})

		if err := invoke(t, runner, "watchlist", "add", "1049041", "--name", "Some Show"); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if !strings.Contains(output.String(), "Following Some Show") {
			t.Errorf("missing confirmation, got: %s", output.String())
		}

		output.Reset()
		if err := invoke(t, runner, "watchlist", "list"); err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if !strings.Contains(output.String(), "1049041") || !strings.Contains(output.String(), "Some Show") {
			t.Errorf("list missing entry, got: %s", output.String())
		}
	})

	t.Run("duplicate add fails", func(t *testing.T) {
		runner, _ := testRunner(t, RunnerOpts{})

		if err := invoke(t, runner, "watchlist", "add", "1049041", "--name", "Some Show"); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if err := invoke(t, runner, "watchlist", "add", "1049041", "--name", "Some Show"); err == nil {
			t.Error("expected duplicate add to fail")
		}
	})

	t.Run("add by URL", func(t *testing.T) {
		runner, output := testRunner(t, RunnerOpts{})

		err := invoke(t, runner, "watchlist", "add",
			"https://www.bilibili.tv/en/play/1049041/11884270", "--name", "Some Show")
		if err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if !strings.Contains(output.String(), "(1049041)") {
			t.Errorf("expected series ID extracted from URL, got: %s", output.String())
		}
	})

	t.Run("add without ID fails", func(t *testing.T) {
		runner, _ := testRunner(t, RunnerOpts{})

		if err := invoke(t, runner, "watchlist", "add"); err == nil {
			t.Error("expected missing argument error")
		}
	})

	t.Run("remove", func(t *testing.T) {
		runner, output := testRunner(t, RunnerOpts{})

		if err := invoke(t, runner, "watchlist", "add", "1049041", "--name", "Some Show"); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if err := invoke(t, runner, "watchlist", "remove", "1049041"); err != nil {
			t.Fatalf("remove failed: %v", err)
		}
		if !strings.Contains(output.String(), "Unfollowed 1049041") {
			t.Errorf("missing confirmation, got: %s", output.String())
		}

		if err := invoke(t, runner, "watchlist", "remove", "1049041"); err == nil {
			t.Error("expected remove of unfollowed series to fail")
		}
	})

	t.Run("list json", func(t *testing.T) {
		runner, output := testRunner(t, RunnerOpts{})

		if err := invoke(t, runner, "watchlist", "add", "1049041", "--name", "Some Show"); err != nil {
			t.Fatalf("add failed: %v", err)
		}

		output.Reset()
		if err := invoke(t, runner, "watchlist", "list", "--json"); err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if !strings.Contains(output.String(), `"SeriesID": "1049041"`) {
			t.Errorf("unexpected JSON output: %s", output.String())
		}
	})
}

func TestRunCommand(t *testing.T) {
	release := models.ReleaseEntry{
		SeriesID:   "1049041",
		Episode:    5,
		Title:      "Some Show",
		ReleasedAt: time.Now().Add(-time.Hour),
		Locator:    "https://www.bilibili.tv/en/play/1049041/11884270",
	}

	t.Run("downloads actionable episodes", func(t *testing.T) {
		fetched := &tu.MockFetcher{FailOn: map[string]bool{}}
		runner, output := testRunner(t, RunnerOpts{
			Source:  &stubSource{entries: []models.ReleaseEntry{release}},
			Fetcher: fetched,
		})

		if err := invoke(t, runner, "watchlist", "add", "1049041", "--name", "Some Show"); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if err := invoke(t, runner, "run"); err != nil {
			t.Fatalf("run failed: %v", err)
		}

		if len(fetched.Fetched) != 1 || fetched.Fetched[0] != release.Locator {
			t.Errorf("unexpected fetches: %v", fetched.Fetched)
		}
		if !strings.Contains(output.String(), "Succeeded: 1") {
			t.Errorf("missing summary, got: %s", output.String())
		}
	})

	t.Run("failure produces non-zero exit", func(t *testing.T) {
		fetched := &tu.MockFetcher{FailOn: map[string]bool{release.Locator: true}}
		runner, _ := testRunner(t, RunnerOpts{
			Source:  &stubSource{entries: []models.ReleaseEntry{release}},
			Fetcher: fetched,
		})

		if err := invoke(t, runner, "watchlist", "add", "1049041", "--name", "Some Show"); err != nil {
			t.Fatalf("add failed: %v", err)
		}

		err := invoke(t, runner, "run")
		if err == nil {
			t.Fatal("expected run to report failure")
		}

		var coder cli.ExitCoder
		if !errors.As(err, &coder) || coder.ExitCode() == 0 {
			t.Errorf("expected non-zero exit code, got %v", err)
		}
	})

	t.Run("dry run fetches nothing", func(t *testing.T) {
		fetched := &tu.MockFetcher{FailOn: map[string]bool{}}
		runner, output := testRunner(t, RunnerOpts{
			Source:  &stubSource{entries: []models.ReleaseEntry{release}},
			Fetcher: fetched,
		})

		if err := invoke(t, runner, "watchlist", "add", "1049041", "--name", "Some Show"); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if err := invoke(t, runner, "run", "--dry-run"); err != nil {
			t.Fatalf("dry run failed: %v", err)
		}

		if len(fetched.Fetched) != 0 {
			t.Errorf("dry run must not fetch, got: %v", fetched.Fetched)
		}
		if !strings.Contains(output.String(), "Skipped (dry run): 1") {
			t.Errorf("missing dry-run summary, got: %s", output.String())
		}
	})

	t.Run("progress output drains before summary", func(t *testing.T) {
		entries := make([]models.ReleaseEntry, 0, 8)
		for i := 1; i <= 8; i++ {
			entries = append(entries, models.ReleaseEntry{
				SeriesID:   "1049041",
				Episode:    i,
				Title:      "Some Show",
				ReleasedAt: time.Now().Add(-time.Hour),
				Locator:    fmt.Sprintf("https://www.bilibili.tv/en/play/1049041/%d", 11884260+i),
			})
		}

		// Repeat the cycle so interleaving between the progress goroutine
		// and the summary writer gets a fair chance to surface.
		for i := 0; i < 20; i++ {
			runner, output := testRunner(t, RunnerOpts{
				Source:  &stubSource{entries: entries},
				Fetcher: &tu.MockFetcher{FailOn: map[string]bool{}},
			})

			if err := invoke(t, runner, "watchlist", "add", "1049041", "--name", "Some Show"); err != nil {
				t.Fatalf("add failed: %v", err)
			}
			if err := invoke(t, runner, "run"); err != nil {
				t.Fatalf("run failed: %v", err)
			}

			text := output.String()
			summary := strings.Index(text, "Cycle Complete")
			if summary < 0 {
				t.Fatalf("missing summary, got: %s", text)
			}
			if last := strings.LastIndex(text, "   ["); last > summary {
				t.Fatalf("progress line written after summary began:\n%s", text)
			}
		}
	})
}

func TestDownloadCommand(t *testing.T) {
	locator := "https://www.bilibili.tv/en/play/1049041/11884270"

	t.Run("fetches and records", func(t *testing.T) {
		fetched := &tu.MockFetcher{FailOn: map[string]bool{}}
		db := testDB(t)
		runner, output := testRunner(t, RunnerOpts{DB: db, Fetcher: fetched})

		if err := invoke(t, runner, "download", "--episode", "5", locator); err != nil {
			t.Fatalf("download failed: %v", err)
		}
		if len(fetched.Fetched) != 1 || fetched.Fetched[0] != locator {
			t.Errorf("unexpected fetches: %v", fetched.Fetched)
		}
		if !strings.Contains(output.String(), "✓ Saved to") {
			t.Errorf("missing confirmation, got: %s", output.String())
		}

		record, err := repositories.NewHistoryRepository(db).Get("1049041", 5)
		if err != nil {
			t.Fatalf("ledger record missing: %v", err)
		}
		if record.Status != models.StatusSucceeded || record.Locator != locator {
			t.Errorf("unexpected ledger record: %+v", record)
		}
	})

	t.Run("repeat download dedups unless forced", func(t *testing.T) {
		fetched := &tu.MockFetcher{FailOn: map[string]bool{}}
		runner, _ := testRunner(t, RunnerOpts{Fetcher: fetched})

		if err := invoke(t, runner, "download", "--episode", "5", locator); err != nil {
			t.Fatalf("download failed: %v", err)
		}
		if err := invoke(t, runner, "download", "--episode", "5", locator); !errors.Is(err, shared.ErrDuplicateEntry) {
			t.Errorf("expected duplicate to be refused, got %v", err)
		}
		if err := invoke(t, runner, "download", "--episode", "5", "--force", locator); err != nil {
			t.Fatalf("forced download failed: %v", err)
		}
		if len(fetched.Fetched) != 2 {
			t.Errorf("expected 2 fetches, got %v", fetched.Fetched)
		}
	})

	t.Run("failure records and exits non-zero", func(t *testing.T) {
		fetched := &tu.MockFetcher{FailOn: map[string]bool{locator: true}}
		db := testDB(t)
		runner, _ := testRunner(t, RunnerOpts{DB: db, Fetcher: fetched})

		err := invoke(t, runner, "download", "--episode", "5", locator)
		var coder cli.ExitCoder
		if !errors.As(err, &coder) || coder.ExitCode() == 0 {
			t.Fatalf("expected non-zero exit code, got %v", err)
		}

		record, err := repositories.NewHistoryRepository(db).Get("1049041", 5)
		if err != nil {
			t.Fatalf("ledger record missing: %v", err)
		}
		if record.Status != models.StatusFailed {
			t.Errorf("expected failed status, got %+v", record)
		}

		// A failed record must not block the retry.
		if err := invoke(t, runner, "download", "--episode", "5", locator); err == nil {
			t.Error("expected second attempt to fail too")
		}
		if len(fetched.Fetched) != 2 {
			t.Errorf("expected retry to fetch again, got %v", fetched.Fetched)
		}
	})

	t.Run("rejects non-series input", func(t *testing.T) {
		runner, _ := testRunner(t, RunnerOpts{Fetcher: &tu.MockFetcher{}})

		if err := invoke(t, runner, "download", "https://example.com/watch"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected invalid argument error, got %v", err)
		}
		if err := invoke(t, runner, "download"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected missing argument error, got %v", err)
		}
	})
}

func TestHistoryCommands(t *testing.T) {
	seed := func(t *testing.T, db *sql.DB) {
		t.Helper()
		repo := repositories.NewHistoryRepository(db)
		if err := repo.Record(&models.HistoryRecord{
			SeriesID:    "1049041",
			Episode:     5,
			Locator:     "https://www.bilibili.tv/en/play/1049041/11884270",
			Status:      models.StatusSucceeded,
			ProcessedAt: time.Now(),
		}); err != nil {
			t.Fatalf("failed to seed history: %v", err)
		}
	}

	t.Run("list", func(t *testing.T) {
		db := testDB(t)
		seed(t, db)
		runner, output := testRunner(t, RunnerOpts{DB: db})

		if err := invoke(t, runner, "history", "list"); err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if !strings.Contains(output.String(), "1049041") || !strings.Contains(output.String(), "succeeded") {
			t.Errorf("list missing record, got: %s", output.String())
		}
	})

	t.Run("clear with --yes", func(t *testing.T) {
		db := testDB(t)
		seed(t, db)
		runner, output := testRunner(t, RunnerOpts{DB: db})

		if err := invoke(t, runner, "history", "clear", "--yes"); err != nil {
			t.Fatalf("clear failed: %v", err)
		}
		if !strings.Contains(output.String(), "Cleared 1 record") {
			t.Errorf("missing confirmation, got: %s", output.String())
		}
	})

	t.Run("export", func(t *testing.T) {
		db := testDB(t)
		seed(t, db)
		runner, _ := testRunner(t, RunnerOpts{DB: db})

		base := filepath.Join(t.TempDir(), "ledger")
		if err := invoke(t, runner, "history", "export", "--format", "md", "--output", base); err != nil {
			t.Fatalf("export failed: %v", err)
		}
		tu.AssertFileExists(t, base+".md")
	})

	t.Run("run then history reflects outcome", func(t *testing.T) {
		release := models.ReleaseEntry{
			SeriesID:   "1049041",
			Episode:    5,
			Title:      "Some Show",
			ReleasedAt: time.Now().Add(-time.Hour),
			Locator:    "https://www.bilibili.tv/en/play/1049041/11884270",
		}
		runner, output := testRunner(t, RunnerOpts{
			Source:  &stubSource{entries: []models.ReleaseEntry{release}},
			Fetcher: &tu.MockFetcher{FailOn: map[string]bool{}},
		})

		if err := invoke(t, runner, "watchlist", "add", "1049041", "--name", "Some Show"); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if err := invoke(t, runner, "run"); err != nil {
			t.Fatalf("run failed: %v", err)
		}

		output.Reset()
		if err := invoke(t, runner, "history", "list", "--series", "1049041"); err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if !strings.Contains(output.String(), "succeeded") {
			t.Errorf("history missing downloaded episode, got: %s", output.String())
		}
	})
}

// Ensure the engine's ScheduleSource boundary stays satisfied by the
// injectable stub.
var _ tasks.ScheduleSource = (*stubSource)(nil)
