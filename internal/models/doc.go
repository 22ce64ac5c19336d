// Package models defines the record types shared across the release tracker.
//
// The package contains two categories of types:
//
// 1. Transient schedule data: ReleaseEntry and ActionableEpisode are produced
// fresh on every schedule fetch and never persisted.
//
// 2. Persisted records: WatchEntry and HistoryRecord mirror rows in the
// watchlist and history tables owned by the repositories package.
package models
