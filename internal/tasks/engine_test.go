package tasks

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/nattadasu/bilidownloader/internal/models"
	"github.com/nattadasu/bilidownloader/internal/repositories"
	"github.com/nattadasu/bilidownloader/internal/shared"
	helpers "github.com/nattadasu/bilidownloader/internal/testing"
)

var base = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

// stubSource returns a fixed schedule snapshot.
type stubSource struct {
	entries []models.ReleaseEntry
	err     error
}

func (s *stubSource) Releases(ctx context.Context, maxAge time.Duration) ([]models.ReleaseEntry, error) {
	return s.entries, s.err
}

func entry(seriesID string, episode int, at time.Time) models.ReleaseEntry {
	return models.ReleaseEntry{
		SeriesID:   seriesID,
		Episode:    episode,
		Title:      "Series " + seriesID,
		ReleasedAt: at,
		Locator:    "locator-" + seriesID + "-" + string(rune('0'+episode)),
	}
}

type fixture struct {
	db        *sql.DB
	watchlist *repositories.WatchlistRepository
	history   *repositories.HistoryRepository
	fetcher   *helpers.MockFetcher
	source    *stubSource
}

func setup(t *testing.T, entries ...models.ReleaseEntry) *fixture {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return &fixture{
		db:        db,
		watchlist: repositories.NewWatchlistRepository(db),
		history:   repositories.NewHistoryRepository(db),
		fetcher:   &helpers.MockFetcher{FailOn: map[string]bool{}},
		source:    &stubSource{entries: entries},
	}
}

func (f *fixture) engine(t *testing.T) *CycleEngine {
	t.Helper()
	engine, err := NewCycleEngine(EngineOpts{
		Watchlist: f.watchlist,
		History:   f.history,
		Source:    f.source,
		Fetcher:   f.fetcher,
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

func TestCycleHappyPath(t *testing.T) {
	f := setup(t,
		entry("S1", 1, base),
		entry("S1", 2, base.Add(time.Hour)),
	)
	if _, err := f.watchlist.Add("S1", "Series S1"); err != nil {
		t.Fatalf("failed to add series: %v", err)
	}

	result, err := f.engine(t).Cycle(context.Background(), nil)
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if result.Actionable != 2 || result.Succeeded != 2 || result.Failed != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.HasFailures() {
		t.Error("cycle should report no failures")
	}

	// Episodes processed oldest-first.
	if len(f.fetcher.Fetched) != 2 || f.fetcher.Fetched[0] != "locator-S1-1" {
		t.Errorf("unexpected fetch order: %v", f.fetcher.Fetched)
	}

	we, err := f.watchlist.Get("S1")
	if err != nil {
		t.Fatalf("failed to get entry: %v", err)
	}
	if we.LastKnownEpisode == nil || *we.LastKnownEpisode != 2 {
		t.Errorf("expected cursor at 2, got %v", we.LastKnownEpisode)
	}

	for ep := 1; ep <= 2; ep++ {
		rec, err := f.history.Get("S1", ep)
		if err != nil {
			t.Fatalf("missing ledger record for episode %d: %v", ep, err)
		}
		if rec.Status != models.StatusSucceeded {
			t.Errorf("episode %d: expected succeeded, got %s", ep, rec.Status)
		}
		if rec.CycleID != result.CycleID {
			t.Errorf("episode %d: cycle id not recorded", ep)
		}
	}
}

func TestCycleNeverRefetchesSucceeded(t *testing.T) {
	f := setup(t, entry("S1", 1, base))
	if _, err := f.watchlist.Add("S1", "Series S1"); err != nil {
		t.Fatalf("failed to add series: %v", err)
	}

	engine := f.engine(t)
	for i := 0; i < 3; i++ {
		if _, err := engine.Cycle(context.Background(), nil); err != nil {
			t.Fatalf("cycle %d failed: %v", i, err)
		}
	}

	if len(f.fetcher.Fetched) != 1 {
		t.Errorf("episode fetched %d times, want exactly once", len(f.fetcher.Fetched))
	}
}

func TestCycleFailedEpisodeStaysActionable(t *testing.T) {
	f := setup(t,
		entry("S1", 1, base),
		entry("S1", 2, base.Add(time.Hour)),
	)
	if _, err := f.watchlist.Add("S1", "Series S1"); err != nil {
		t.Fatalf("failed to add series: %v", err)
	}
	f.fetcher.FailOn["locator-S1-1"] = true

	engine := f.engine(t)
	result, err := engine.Cycle(context.Background(), nil)
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if result.Succeeded != 1 || result.Failed != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	if !result.HasFailures() {
		t.Error("cycle should report failures")
	}

	rec, err := f.history.Get("S1", 1)
	if err != nil {
		t.Fatalf("missing ledger record: %v", err)
	}
	if rec.Status != models.StatusFailed {
		t.Errorf("expected failed record, got %s", rec.Status)
	}
	rec, err = f.history.Get("S1", 2)
	if err != nil {
		t.Fatalf("missing ledger record: %v", err)
	}
	if rec.Status != models.StatusSucceeded {
		t.Errorf("expected episode 2 succeeded, got %s", rec.Status)
	}

	// Episode 2 succeeded after episode 1 failed, so the cursor stays put:
	// moving it to 2 would shadow episode 1's retry.
	we, err := f.watchlist.Get("S1")
	if err != nil {
		t.Fatalf("failed to get entry: %v", err)
	}
	if we.LastKnownEpisode != nil {
		t.Errorf("cursor must not advance past a failed episode, got %d", *we.LastKnownEpisode)
	}

	f.fetcher.FailOn = map[string]bool{}
	f.fetcher.Fetched = nil

	second, err := engine.Cycle(context.Background(), nil)
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if second.Actionable != 1 {
		t.Errorf("expected only the failed episode to be actionable, got %d", second.Actionable)
	}
	if len(f.fetcher.Fetched) != 1 || f.fetcher.Fetched[0] != "locator-S1-1" {
		t.Errorf("expected retry of episode 1 only, got %v", f.fetcher.Fetched)
	}

	// The retry succeeded; the next reconcile catches the cursor up to 2.
	third, err := engine.Cycle(context.Background(), nil)
	if err != nil {
		t.Fatalf("third cycle failed: %v", err)
	}
	if third.Reconciled != 1 {
		t.Errorf("expected a reconciled cursor, got %d", third.Reconciled)
	}

	we, err = f.watchlist.Get("S1")
	if err != nil {
		t.Fatalf("failed to get entry: %v", err)
	}
	if we.LastKnownEpisode == nil || *we.LastKnownEpisode != 2 {
		t.Errorf("expected cursor at 2 after retry, got %v", we.LastKnownEpisode)
	}
}

func TestCycleRetryFlow(t *testing.T) {
	// Single-episode schedule: a failure is retried on the next cycle and
	// the ledger record flips from failed to succeeded.
	f := setup(t, entry("S1", 1, base))
	if _, err := f.watchlist.Add("S1", "Series S1"); err != nil {
		t.Fatalf("failed to add series: %v", err)
	}
	f.fetcher.FailOn["locator-S1-1"] = true

	engine := f.engine(t)
	if _, err := engine.Cycle(context.Background(), nil); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}

	f.fetcher.FailOn = map[string]bool{}
	result, err := engine.Cycle(context.Background(), nil)
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if result.Succeeded != 1 {
		t.Errorf("expected retry to succeed, got %+v", result)
	}

	rec, err := f.history.Get("S1", 1)
	if err != nil {
		t.Fatalf("missing ledger record: %v", err)
	}
	if rec.Status != models.StatusSucceeded {
		t.Errorf("expected succeeded after retry, got %s", rec.Status)
	}

	if len(f.fetcher.Fetched) != 2 {
		t.Errorf("expected 2 fetch attempts total, got %d", len(f.fetcher.Fetched))
	}
}

func TestCycleUnwatchedSeriesIgnored(t *testing.T) {
	f := setup(t, entry("S9", 1, base))
	if _, err := f.watchlist.Add("S1", "Series S1"); err != nil {
		t.Fatalf("failed to add series: %v", err)
	}

	result, err := f.engine(t).Cycle(context.Background(), nil)
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if result.Actionable != 0 || len(f.fetcher.Fetched) != 0 {
		t.Errorf("unwatched series must never be fetched: %+v", result)
	}
}

func TestReconcileCatchesUpCursor(t *testing.T) {
	// Simulates a crash after the ledger write for E3 but before the
	// advance: on the next startup the cursor is reconciled to 3 without
	// re-fetching.
	f := setup(t, entry("S1", 3, base))
	if _, err := f.watchlist.Add("S1", "Series S1"); err != nil {
		t.Fatalf("failed to add series: %v", err)
	}
	if err := f.history.Record(&models.HistoryRecord{
		SeriesID:    "S1",
		Episode:     3,
		Locator:     "locator-S1-3",
		Status:      models.StatusSucceeded,
		ProcessedAt: base,
	}); err != nil {
		t.Fatalf("failed to seed ledger: %v", err)
	}

	result, err := f.engine(t).Cycle(context.Background(), nil)
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if result.Reconciled != 1 {
		t.Errorf("expected 1 reconciled cursor, got %d", result.Reconciled)
	}
	if len(f.fetcher.Fetched) != 0 {
		t.Errorf("reconciled episode must not be re-fetched: %v", f.fetcher.Fetched)
	}

	we, err := f.watchlist.Get("S1")
	if err != nil {
		t.Fatalf("failed to get entry: %v", err)
	}
	if we.LastKnownEpisode == nil || *we.LastKnownEpisode != 3 {
		t.Errorf("expected cursor reconciled to 3, got %v", we.LastKnownEpisode)
	}
}

func TestCycleScheduleFailureAbortsBeforeFetching(t *testing.T) {
	f := setup(t)
	f.source.err = shared.ErrNetwork
	if _, err := f.watchlist.Add("S1", "Series S1"); err != nil {
		t.Fatalf("failed to add series: %v", err)
	}

	_, err := f.engine(t).Cycle(context.Background(), nil)
	if err == nil {
		t.Fatal("expected cycle-level failure when the schedule fetch fails")
	}
	if len(f.fetcher.Fetched) != 0 {
		t.Error("no episode may be processed when the schedule fetch fails")
	}
}

func TestCycleDryRun(t *testing.T) {
	f := setup(t, entry("S1", 1, base))
	if _, err := f.watchlist.Add("S1", "Series S1"); err != nil {
		t.Fatalf("failed to add series: %v", err)
	}

	engine, err := NewCycleEngine(EngineOpts{
		Watchlist: f.watchlist,
		History:   f.history,
		Source:    f.source,
		Fetcher:   f.fetcher,
		DryRun:    true,
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	result, err := engine.Cycle(context.Background(), nil)
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if result.Skipped != 1 || len(f.fetcher.Fetched) != 0 {
		t.Errorf("dry run must not fetch: %+v", result)
	}

	if exists, _ := f.history.Contains("S1", 1); exists {
		t.Error("dry run must not write ledger records")
	}
}

func TestCycleProgressUpdates(t *testing.T) {
	f := setup(t, entry("S1", 1, base))
	if _, err := f.watchlist.Add("S1", "Series S1"); err != nil {
		t.Fatalf("failed to add series: %v", err)
	}

	progress := make(chan ProgressUpdate, 16)
	if _, err := f.engine(t).Cycle(context.Background(), progress); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	close(progress)

	var phases []Phase
	for update := range progress {
		phases = append(phases, update.Phase)
	}

	want := []Phase{PhaseReconcile, PhaseSchedule, PhaseMatch, PhaseFetch, PhaseDone}
	if len(phases) != len(want) {
		t.Fatalf("expected %d updates, got %d: %v", len(want), len(phases), phases)
	}
	for i, phase := range want {
		if phases[i] != phase {
			t.Errorf("update %d: expected phase %s, got %s", i, phase, phases[i])
		}
	}
}

func TestCycleLockContention(t *testing.T) {
	f := setup(t)
	lockPath := t.TempDir() + "/cycle.lock"

	held := shared.NewCycleLock(lockPath)
	if err := held.Acquire(); err != nil {
		t.Fatalf("failed to pre-acquire lock: %v", err)
	}
	defer held.Release()

	engine, err := NewCycleEngine(EngineOpts{
		Watchlist: f.watchlist,
		History:   f.history,
		Source:    f.source,
		Fetcher:   f.fetcher,
		Lock:      shared.NewCycleLock(lockPath),
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	if _, err := engine.Cycle(context.Background(), nil); err == nil {
		t.Error("expected cycle to fail while the lock is held")
	}
}
