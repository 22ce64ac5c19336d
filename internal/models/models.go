package models

import (
	"fmt"
	"time"
)

// HistoryStatus is the terminal outcome recorded for a processed episode.
type HistoryStatus string

const (
	StatusSucceeded HistoryStatus = "succeeded"
	StatusFailed    HistoryStatus = "failed"
)

// Valid reports whether the status is one of the known terminal states.
func (s HistoryStatus) Valid() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// EpisodeKey uniquely identifies one episode of a series. It is the primary
// key of the history ledger.
type EpisodeKey struct {
	SeriesID string
	Episode  int
}

func (k EpisodeKey) String() string {
	return fmt.Sprintf("%s/E%d", k.SeriesID, k.Episode)
}

// ReleaseEntry is one released episode in a schedule snapshot. Entries are
// transient input to the matcher and are never persisted.
type ReleaseEntry struct {
	SeriesID   string
	Episode    int
	Title      string
	ReleasedAt time.Time
	Locator    string
}

// Key returns the ledger key for this entry.
func (e ReleaseEntry) Key() EpisodeKey {
	return EpisodeKey{SeriesID: e.SeriesID, Episode: e.Episode}
}

// WatchEntry is one followed series. LastKnownEpisode is nil until the first
// episode has been processed successfully; once set it only ever advances.
type WatchEntry struct {
	SeriesID         string
	DisplayName      string
	LastKnownEpisode *int
	Active           bool
	Position         int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Validate checks the entry's data before it is written to the store.
func (w *WatchEntry) Validate() error {
	if w.SeriesID == "" {
		return fmt.Errorf("watch entry: series id is required")
	}
	if w.DisplayName == "" {
		return fmt.Errorf("watch entry: display name is required")
	}
	if w.LastKnownEpisode != nil && *w.LastKnownEpisode < 0 {
		return fmt.Errorf("watch entry: last known episode must not be negative")
	}
	return nil
}

// HistoryRecord is one row of the history ledger, keyed by
// (SeriesID, Episode). A re-processing attempt overwrites the prior record
// for the same key rather than adding a second one.
type HistoryRecord struct {
	SeriesID    string
	Episode     int
	Locator     string
	Status      HistoryStatus
	ProcessedAt time.Time
	CycleID     string
}

// Key returns the ledger key for this record.
func (r HistoryRecord) Key() EpisodeKey {
	return EpisodeKey{SeriesID: r.SeriesID, Episode: r.Episode}
}

// Validate checks the record's data before it is written to the ledger.
func (r *HistoryRecord) Validate() error {
	if r.SeriesID == "" {
		return fmt.Errorf("history record: series id is required")
	}
	if r.Episode < 0 {
		return fmt.Errorf("history record: episode must not be negative")
	}
	if r.Locator == "" {
		return fmt.Errorf("history record: locator is required")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("history record: unknown status %q", r.Status)
	}
	return nil
}

// ActionableEpisode is an episode the matcher selected for processing:
// released, watched, and without a succeeded ledger record.
type ActionableEpisode struct {
	SeriesID   string
	Episode    int
	Title      string
	ReleasedAt time.Time
	Locator    string
}

// Key returns the ledger key for this episode.
func (a ActionableEpisode) Key() EpisodeKey {
	return EpisodeKey{SeriesID: a.SeriesID, Episode: a.Episode}
}
