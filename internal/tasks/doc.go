// Package tasks implements the processing cycle that drives the tracker.
//
// The core abstraction is CycleEngine, which runs one end-to-end cycle:
// reconcile the watchlist cursor against the ledger, fetch the release
// schedule, match it against the watchlist, invoke the fetcher per
// actionable episode, and record every outcome. Operations emit progress
// updates via channels for non-blocking status reporting to the CLI layer.
//
// The unit of recoverable progress is one episode's ledger-write-then-advance
// pair: the ledger write lands first, so a crash between the two steps is
// caught by the next startup's reconciliation pass rather than causing a
// duplicate download.
package tasks
