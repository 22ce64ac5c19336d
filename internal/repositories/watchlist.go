package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nattadasu/bilidownloader/internal/models"
	"github.com/nattadasu/bilidownloader/internal/shared"
)

// WatchlistRepository persists followed series.
//
// Removal is soft: the row is kept with active=0 so the episode cursor
// survives a follow/unfollow round trip. Adding a series whose row is
// inactive reactivates it in place; shared.ErrDuplicateEntry only fires for
// an active row.
type WatchlistRepository struct {
	db *sql.DB
}

// NewWatchlistRepository creates a WatchlistRepository over the given
// database connection.
func NewWatchlistRepository(db *sql.DB) *WatchlistRepository {
	return &WatchlistRepository{db: db}
}

// Add follows a series. The new entry starts with no episode cursor and is
// appended to the end of the list.
func (r *WatchlistRepository) Add(seriesID, displayName string) (*models.WatchEntry, error) {
	entry := &models.WatchEntry{
		SeriesID:    seriesID,
		DisplayName: displayName,
		Active:      true,
	}
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var active bool
	err = tx.QueryRow("SELECT active FROM watchlist WHERE series_id = ?", seriesID).Scan(&active)
	switch {
	case err == nil && active:
		return nil, fmt.Errorf("%w: series %s", shared.ErrDuplicateEntry, seriesID)
	case err == nil:
		// Inactive row: reactivate in place, keeping the cursor.
		now := time.Now().UTC()
		_, err = tx.Exec(
			"UPDATE watchlist SET active = 1, display_name = ?, updated_at = ? WHERE series_id = ?",
			displayName, now, seriesID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to reactivate watch entry: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit watch entry: %w", err)
		}
		return r.Get(seriesID)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to check watchlist: %w", err)
	}

	var position int
	if err := tx.QueryRow("SELECT COALESCE(MAX(position), 0) + 1 FROM watchlist").Scan(&position); err != nil {
		return nil, fmt.Errorf("failed to assign position: %w", err)
	}

	now := time.Now().UTC()
	entry.Position = position
	entry.CreatedAt = now
	entry.UpdatedAt = now

	_, err = tx.Exec(`
		INSERT INTO watchlist (series_id, display_name, last_known_episode, active, position, created_at, updated_at)
		VALUES (?, ?, NULL, 1, ?, ?, ?)
	`, entry.SeriesID, entry.DisplayName, entry.Position, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert watch entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit watch entry: %w", err)
	}

	return entry, nil
}

// Remove unfollows a series by marking its row inactive.
func (r *WatchlistRepository) Remove(seriesID string) error {
	result, err := r.db.Exec(
		"UPDATE watchlist SET active = 0, updated_at = ? WHERE series_id = ? AND active = 1",
		time.Now().UTC(), seriesID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove watch entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: series %s", shared.ErrNotFound, seriesID)
	}

	return nil
}

// Get retrieves one watch entry by series ID, whether active or not.
func (r *WatchlistRepository) Get(seriesID string) (*models.WatchEntry, error) {
	row := r.db.QueryRow(`
		SELECT series_id, display_name, last_known_episode, active, position, created_at, updated_at
		FROM watchlist
		WHERE series_id = ?
	`, seriesID)

	entry, err := scanWatchEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: series %s", shared.ErrNotFound, seriesID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan watch entry: %w", err)
	}

	return entry, nil
}

// List retrieves watch entries in insertion order. With activeOnly set,
// removed entries are excluded.
func (r *WatchlistRepository) List(activeOnly bool) ([]models.WatchEntry, error) {
	query := `
		SELECT series_id, display_name, last_known_episode, active, position, created_at, updated_at
		FROM watchlist
	`
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY position ASC"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var entries []models.WatchEntry
	for rows.Next() {
		entry, err := scanWatchEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan watch entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

// Advance moves the series' episode cursor forward. It is the only legal way
// last_known_episode changes. Moving backwards fails with
// shared.ErrRegression; advancing to the current value is a no-op.
func (r *WatchlistRepository) Advance(seriesID string, episode int) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current sql.NullInt64
	err = tx.QueryRow("SELECT last_known_episode FROM watchlist WHERE series_id = ?", seriesID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: series %s", shared.ErrNotFound, seriesID)
	}
	if err != nil {
		return fmt.Errorf("failed to read episode cursor: %w", err)
	}

	if current.Valid && int64(episode) < current.Int64 {
		return fmt.Errorf("%w: series %s is at E%d, refusing E%d",
			shared.ErrRegression, seriesID, current.Int64, episode)
	}

	_, err = tx.Exec(
		"UPDATE watchlist SET last_known_episode = ?, updated_at = ? WHERE series_id = ?",
		episode, time.Now().UTC(), seriesID,
	)
	if err != nil {
		return fmt.Errorf("failed to advance episode cursor: %w", err)
	}

	return tx.Commit()
}

// scanWatchEntry scans one watchlist row using the given scan function.
func scanWatchEntry(scan func(...any) error) (*models.WatchEntry, error) {
	var (
		entry       models.WatchEntry
		lastEpisode sql.NullInt64
	)

	err := scan(
		&entry.SeriesID,
		&entry.DisplayName,
		&lastEpisode,
		&entry.Active,
		&entry.Position,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastEpisode.Valid {
		ep := int(lastEpisode.Int64)
		entry.LastKnownEpisode = &ep
	}

	return &entry, nil
}
