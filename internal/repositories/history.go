package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/nattadasu/bilidownloader/internal/models"
	"github.com/nattadasu/bilidownloader/internal/shared"
)

// HistoryRepository persists the append-only ledger of processed episodes.
// Records are keyed by (series_id, episode_number); a re-processing attempt
// overwrites the prior record for that key.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a HistoryRepository over the given database
// connection.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Record upserts a ledger entry. This is how a failed episode transitions to
// succeeded on a later retry.
func (r *HistoryRepository) Record(rec *models.HistoryRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	_, err := r.db.Exec(`
		INSERT INTO history (series_id, episode_number, locator, status, processed_at, cycle_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (series_id, episode_number) DO UPDATE SET
			locator = excluded.locator,
			status = excluded.status,
			processed_at = excluded.processed_at,
			cycle_id = excluded.cycle_id
	`, rec.SeriesID, rec.Episode, rec.Locator, rec.Status, rec.ProcessedAt, rec.CycleID)
	if err != nil {
		return fmt.Errorf("failed to record history entry: %w", err)
	}

	return nil
}

// Contains reports whether any record exists for the episode, regardless of
// status.
func (r *HistoryRepository) Contains(seriesID string, episode int) (bool, error) {
	var exists bool
	err := r.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM history WHERE series_id = ? AND episode_number = ?)",
		seriesID, episode,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check history: %w", err)
	}
	return exists, nil
}

// Get retrieves the record for one episode.
func (r *HistoryRepository) Get(seriesID string, episode int) (*models.HistoryRecord, error) {
	var rec models.HistoryRecord
	var cycleID sql.NullString

	err := r.db.QueryRow(`
		SELECT series_id, episode_number, locator, status, processed_at, cycle_id
		FROM history
		WHERE series_id = ? AND episode_number = ?
	`, seriesID, episode).Scan(&rec.SeriesID, &rec.Episode, &rec.Locator, &rec.Status, &rec.ProcessedAt, &cycleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s episode %d", shared.ErrNotFound, seriesID, episode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan history record: %w", err)
	}

	rec.CycleID = cycleID.String
	return &rec, nil
}

// SucceededSet returns the keys of every succeeded record. This is the
// ledger snapshot the matcher excludes against; failed records stay
// actionable.
func (r *HistoryRepository) SucceededSet() (map[models.EpisodeKey]struct{}, error) {
	rows, err := r.db.Query(
		"SELECT series_id, episode_number FROM history WHERE status = ?",
		models.StatusSucceeded,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	set := make(map[models.EpisodeKey]struct{})
	for rows.Next() {
		var key models.EpisodeKey
		if err := rows.Scan(&key.SeriesID, &key.Episode); err != nil {
			return nil, fmt.Errorf("failed to scan history key: %w", err)
		}
		set[key] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return set, nil
}

// CursorTarget returns the episode number the series' watchlist cursor
// should be caught up to, or ok=false when nothing qualifies. The ledger is
// the source of truth for "succeeded" and the cursor is a derived projection,
// but the cursor must never move past an episode that is still failed:
// advancing it would shadow the retry. The target is therefore the highest
// succeeded episode with no failed episode below it.
func (r *HistoryRepository) CursorTarget(seriesID string) (int, bool, error) {
	var max sql.NullInt64
	err := r.db.QueryRow(`
		SELECT MAX(h.episode_number)
		FROM history h
		WHERE h.series_id = ? AND h.status = ?
		AND NOT EXISTS (
			SELECT 1 FROM history f
			WHERE f.series_id = h.series_id
			AND f.status = ?
			AND f.episode_number < h.episode_number
		)
	`, seriesID, models.StatusSucceeded, models.StatusFailed).Scan(&max)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query cursor target: %w", err)
	}
	if !max.Valid {
		return 0, false, nil
	}
	return int(max.Int64), true, nil
}

// List retrieves ledger records newest-first. An empty seriesID lists every
// series.
func (r *HistoryRepository) List(seriesID string) ([]models.HistoryRecord, error) {
	query := `
		SELECT series_id, episode_number, locator, status, processed_at, cycle_id
		FROM history
	`
	args := []any{}
	if seriesID != "" {
		query += " WHERE series_id = ?"
		args = append(args, seriesID)
	}
	query += " ORDER BY processed_at DESC, series_id ASC, episode_number DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []models.HistoryRecord
	for rows.Next() {
		var rec models.HistoryRecord
		var cycleID sql.NullString
		if err := rows.Scan(&rec.SeriesID, &rec.Episode, &rec.Locator, &rec.Status, &rec.ProcessedAt, &cycleID); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		rec.CycleID = cycleID.String
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// Delete removes one record. Only explicit history management calls this;
// the cycle engine never deletes ledger entries.
func (r *HistoryRepository) Delete(seriesID string, episode int) error {
	result, err := r.db.Exec(
		"DELETE FROM history WHERE series_id = ? AND episode_number = ?",
		seriesID, episode,
	)
	if err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s episode %d", shared.ErrNotFound, seriesID, episode)
	}

	return nil
}

// Clear removes every record for a series, or the whole ledger when
// seriesID is empty.
func (r *HistoryRepository) Clear(seriesID string) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if seriesID == "" {
		result, err = r.db.Exec("DELETE FROM history")
	} else {
		result, err = r.db.Exec("DELETE FROM history WHERE series_id = ?", seriesID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}
