// Package repositories provides the persistence layer for the two durable
// stores: the watchlist and the history ledger.
//
// Each repository owns its table exclusively. All cross-invocation state
// lives here; the matcher and the cycle engine only hold transient snapshots
// passed in per invocation.
package repositories
