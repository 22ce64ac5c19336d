// Package matcher computes the actionable set of a cycle: episodes that are
// released, watched, and not yet successfully processed.
//
// Match is a pure function over snapshots. It performs no I/O and holds no
// state, so identical inputs always produce identical, deterministically
// ordered output.
package matcher

import (
	"sort"

	"github.com/nattadasu/bilidownloader/internal/models"
)

// Match filters a schedule snapshot down to actionable episodes.
//
// An entry survives when its series has an active watch entry, no succeeded
// ledger record exists for its key, and its episode number is above the
// series' cursor. The cursor check is redundant with the ledger under normal
// operation; it only fires when a prior cycle's history write was lost,
// which is recoverable, not fatal.
//
// Results are ordered by (release timestamp, series ID, episode number)
// ascending, so multiple unseen episodes of one series come out in
// increasing episode order and none is skipped.
func Match(entries []models.ReleaseEntry, watchlist []models.WatchEntry, succeeded map[models.EpisodeKey]struct{}) []models.ActionableEpisode {
	watched := make(map[string]models.WatchEntry, len(watchlist))
	for _, w := range watchlist {
		if w.Active {
			watched[w.SeriesID] = w
		}
	}

	seen := make(map[models.EpisodeKey]struct{}, len(entries))
	var actionable []models.ActionableEpisode

	for _, entry := range entries {
		w, ok := watched[entry.SeriesID]
		if !ok {
			// Not followed: silently dropped, not an error.
			continue
		}
		if _, done := succeeded[entry.Key()]; done {
			continue
		}
		if w.LastKnownEpisode != nil && entry.Episode <= *w.LastKnownEpisode {
			continue
		}
		if _, dup := seen[entry.Key()]; dup {
			continue
		}
		seen[entry.Key()] = struct{}{}

		actionable = append(actionable, models.ActionableEpisode{
			SeriesID:   entry.SeriesID,
			Episode:    entry.Episode,
			Title:      entry.Title,
			ReleasedAt: entry.ReleasedAt,
			Locator:    entry.Locator,
		})
	}

	sort.Slice(actionable, func(i, j int) bool {
		a, b := actionable[i], actionable[j]
		if !a.ReleasedAt.Equal(b.ReleasedAt) {
			return a.ReleasedAt.Before(b.ReleasedAt)
		}
		if a.SeriesID != b.SeriesID {
			return a.SeriesID < b.SeriesID
		}
		return a.Episode < b.Episode
	})

	return actionable
}
