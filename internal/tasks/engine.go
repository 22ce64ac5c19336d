package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nattadasu/bilidownloader/internal/fetcher"
	"github.com/nattadasu/bilidownloader/internal/matcher"
	"github.com/nattadasu/bilidownloader/internal/models"
	"github.com/nattadasu/bilidownloader/internal/repositories"
	"github.com/nattadasu/bilidownloader/internal/shared"
)

// ScheduleSource is the schedule boundary the engine consumes. Satisfied by
// schedule.Client.
type ScheduleSource interface {
	Releases(ctx context.Context, maxAge time.Duration) ([]models.ReleaseEntry, error)
}

// OutcomeState is the terminal state of one actionable episode in a cycle.
type OutcomeState int

const (
	OutcomeSucceeded OutcomeState = iota
	OutcomeFailed
	OutcomeSkipped
)

func (s OutcomeState) String() string {
	switch s {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// EpisodeOutcome is the per-episode result reported after a cycle.
type EpisodeOutcome struct {
	Episode models.ActionableEpisode
	State   OutcomeState
	Path    string // Downloaded file path on success
	Err     error  // Failure reason, nil on success
}

// CycleResult contains everything one cycle did, for presentation.
type CycleResult struct {
	CycleID    string
	Reconciled int
	Actionable int
	Outcomes   []EpisodeOutcome
	Succeeded  int
	Failed     int
	Skipped    int
}

// HasFailures reports whether any episode in the cycle failed. It drives the
// process exit code.
func (r *CycleResult) HasFailures() bool {
	return r.Failed > 0
}

// CycleEngine orchestrates one processing cycle. It holds no cross-cycle
// state itself; everything durable lives in the two repositories.
type CycleEngine struct {
	watchlist *repositories.WatchlistRepository
	history   *repositories.HistoryRepository
	source    ScheduleSource
	fetcher   fetcher.Fetcher
	lock      *shared.CycleLock
	logger    *log.Logger
	maxAge    time.Duration
	dryRun    bool
}

// EngineOpts contains configuration options for creating a CycleEngine.
type EngineOpts struct {
	Watchlist *repositories.WatchlistRepository
	History   *repositories.HistoryRepository
	Source    ScheduleSource
	Fetcher   fetcher.Fetcher
	Lock      *shared.CycleLock
	Logger    *log.Logger
	MaxAge    time.Duration
	DryRun    bool
}

// NewCycleEngine creates a CycleEngine with the provided dependencies.
func NewCycleEngine(opts EngineOpts) (*CycleEngine, error) {
	if opts.Watchlist == nil || opts.History == nil {
		return nil, fmt.Errorf("cycle engine requires both repositories")
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("cycle engine requires a schedule source")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("cycle engine requires a fetcher")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	return &CycleEngine{
		watchlist: opts.Watchlist,
		history:   opts.History,
		source:    opts.Source,
		fetcher:   opts.Fetcher,
		lock:      opts.Lock,
		logger:    opts.Logger,
		maxAge:    opts.MaxAge,
		dryRun:    opts.DryRun,
	}, nil
}

// sendProgress sends a progress update through the channel without blocking.
func (e *CycleEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Reconcile catches the watchlist cursor up with the ledger. The ledger is
// the source of truth for "succeeded"; the cursor is a derived projection
// that lags when a prior invocation crashed between the ledger write and the
// advance. Returns the number of series whose cursor moved.
func (e *CycleEngine) Reconcile(ctx context.Context) (int, error) {
	entries, err := e.watchlist.List(true)
	if err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}

	caughtUp := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return caughtUp, err
		}

		target, ok, err := e.history.CursorTarget(entry.SeriesID)
		if err != nil {
			return caughtUp, fmt.Errorf("reconcile %s: %w", entry.SeriesID, err)
		}
		if !ok {
			continue
		}
		if entry.LastKnownEpisode != nil && *entry.LastKnownEpisode >= target {
			continue
		}

		if err := e.watchlist.Advance(entry.SeriesID, target); err != nil {
			return caughtUp, fmt.Errorf("reconcile %s: %w", entry.SeriesID, err)
		}
		e.logger.Info("caught up series cursor from ledger",
			"series", entry.SeriesID, "episode", target)
		caughtUp++
	}

	return caughtUp, nil
}

// Cycle runs one end-to-end pass: reconcile, fetch schedule, match, fetch
// episodes, record outcomes. A per-episode fetch failure is recorded and
// reported but never aborts the cycle; only cycle-level failures (lock
// contention, schedule fetch exhausting its retries) return an error.
func (e *CycleEngine) Cycle(ctx context.Context, progress chan<- ProgressUpdate) (*CycleResult, error) {
	if e.lock != nil {
		if err := e.lock.Acquire(); err != nil {
			return nil, err
		}
		defer e.lock.Release()
	}

	result := &CycleResult{CycleID: shared.GenerateID()}
	logger := shared.WithLogger(e.logger, "cycle", result.CycleID)

	reconciled, err := e.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	result.Reconciled = reconciled
	e.sendProgress(progress, reconcileUpdate(reconciled))

	entries, err := e.source.Releases(ctx, e.maxAge)
	if err != nil {
		return nil, fmt.Errorf("schedule fetch: %w", err)
	}
	e.sendProgress(progress, scheduleUpdate(len(entries)))

	watching, err := e.watchlist.List(true)
	if err != nil {
		return nil, err
	}
	succeeded, err := e.history.SucceededSet()
	if err != nil {
		return nil, err
	}

	actionable := matcher.Match(entries, watching, succeeded)
	result.Actionable = len(actionable)
	e.sendProgress(progress, matchUpdate(len(actionable)))
	logger.Info("matched schedule against watchlist",
		"released", len(entries), "actionable", len(actionable))

	// A failure pins the series' cursor: later successes in the same
	// cycle are recorded in the ledger but must not advance past the
	// episode that still needs a retry.
	failedSeries := make(map[string]bool)
	for i, episode := range actionable {
		e.sendProgress(progress, fetchUpdate(i+1, len(actionable), episode.Title, episode.Episode))

		outcome := e.processEpisode(ctx, logger, result.CycleID, episode, !failedSeries[episode.SeriesID])
		result.Outcomes = append(result.Outcomes, outcome)

		switch outcome.State {
		case OutcomeSucceeded:
			result.Succeeded++
		case OutcomeFailed:
			result.Failed++
			failedSeries[episode.SeriesID] = true
		case OutcomeSkipped:
			result.Skipped++
		}
	}

	e.sendProgress(progress, doneUpdate(result.Succeeded, result.Failed))
	return result, nil
}

// processEpisode fetches one episode and records its outcome. On success the
// ledger write happens before the watchlist advance: a crash between the two
// is recovered by Reconcile, never by re-downloading. advance is false when
// an earlier episode of the same series failed this cycle.
func (e *CycleEngine) processEpisode(ctx context.Context, logger *log.Logger, cycleID string, episode models.ActionableEpisode, advance bool) EpisodeOutcome {
	outcome := EpisodeOutcome{Episode: episode}

	if e.dryRun {
		outcome.State = OutcomeSkipped
		logger.Info("dry run: would fetch episode",
			"series", episode.SeriesID, "episode", episode.Episode)
		return outcome
	}

	meta, err := e.fetcher.Fetch(ctx, episode.Locator)
	if err != nil {
		logger.Error("episode fetch failed",
			"series", episode.SeriesID, "episode", episode.Episode, "err", err)
		outcome.State = OutcomeFailed
		outcome.Err = err

		if recErr := e.history.Record(&models.HistoryRecord{
			SeriesID:    episode.SeriesID,
			Episode:     episode.Episode,
			Locator:     episode.Locator,
			Status:      models.StatusFailed,
			ProcessedAt: time.Now().UTC(),
			CycleID:     cycleID,
		}); recErr != nil {
			outcome.Err = errors.Join(err, recErr)
		}
		return outcome
	}

	if err := e.history.Record(&models.HistoryRecord{
		SeriesID:    episode.SeriesID,
		Episode:     episode.Episode,
		Locator:     episode.Locator,
		Status:      models.StatusSucceeded,
		ProcessedAt: time.Now().UTC(),
		CycleID:     cycleID,
	}); err != nil {
		// The file is on disk but the ledger write failed; report the
		// episode as failed so the operator notices, and let the next
		// cycle's succeeded-set rebuild sort it out.
		outcome.State = OutcomeFailed
		outcome.Err = err
		return outcome
	}

	if advance {
		if err := e.watchlist.Advance(episode.SeriesID, episode.Episode); err != nil {
			// The ledger already holds the truth; a lagging cursor is
			// caught up on the next reconcile.
			logger.Warn("cursor advance failed after ledger write",
				"series", episode.SeriesID, "episode", episode.Episode, "err", err)
		}
	}

	outcome.State = OutcomeSucceeded
	if meta != nil {
		outcome.Path = meta.Path
	}
	logger.Info("episode fetched",
		"series", episode.SeriesID, "episode", episode.Episode, "path", outcome.Path)
	return outcome
}
