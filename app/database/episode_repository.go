package database

import (
	"cmp"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SQLiteEpisodeRepository struct {
	db *DB
}

func NewEpisodeRepository(db *DB) *SQLiteEpisodeRepository {
	return &SQLiteEpisodeRepository{db: db}
}

const episodeColumns = `id, feed_name, episode_key, guid, title, subtitle, description,
	date, timestamp, url, image, date_key, link, duration, media_type, media_length,
	is_filtered, filter_reason, show_notes, show_notes_status, show_notes_error,
	show_notes_attempts, show_notes_extracted_at, created_at, updated_at`

func scanEpisode(row rowScanner) (*Episode, error) {
	var e Episode
	var extractedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&e.ID, &e.FeedName, &e.Key, &e.GUID, &e.Title, &e.Subtitle, &e.Description,
		&e.Date, &e.Timestamp, &e.URL, &e.Image, &e.DateKey, &e.Link, &e.Duration, &e.MediaType, &e.MediaLength,
		&e.IsFiltered, &e.FilterReason, &e.ShowNotes, &e.ShowNotesStatus, &e.ShowNotesError,
		&e.ShowNotesAttempts, &extractedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.ShowNotesExtractedAt = timeOrNil(extractedAt)
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	e.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &e, nil
}

func (r *SQLiteEpisodeRepository) SaveWindow(feedName string, episodes []Episode, cursor WindowCursor) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	inserted := 0

	for _, e := range episodes {
		res, err := tx.Exec(`
			INSERT INTO episodes (
				id, feed_name, episode_key, guid, title, subtitle, description,
				date, timestamp, url, image, date_key, link, duration, media_type, media_length,
				is_filtered, filter_reason, show_notes_status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (feed_name, episode_key) DO NOTHING
		`, uuid.NewString(), feedName, e.Key, e.GUID, e.Title, e.Subtitle, e.Description,
			e.Date, e.Timestamp, e.URL, e.Image, e.DateKey, e.Link, e.Duration, e.MediaType, e.MediaLength,
			e.IsFiltered, e.FilterReason, cmp.Or(e.ShowNotesStatus, ShowNotesPending), now, now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert episode: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to insert episode: %w", err)
		}
		if n > 0 {
			inserted++
			continue
		}

		_, err = tx.Exec(`
			UPDATE episodes
			SET guid = ?, title = ?, subtitle = ?, description = ?, date = ?, timestamp = ?,
			    url = ?, image = ?, date_key = ?, link = ?, duration = ?, media_type = ?,
			    media_length = ?, is_filtered = ?, filter_reason = ?, updated_at = ?
			WHERE feed_name = ? AND episode_key = ?
		`, e.GUID, e.Title, e.Subtitle, e.Description, e.Date, e.Timestamp,
			e.URL, e.Image, e.DateKey, e.Link, e.Duration, e.MediaType,
			e.MediaLength, e.IsFiltered, e.FilterReason, now,
			feedName, e.Key)
		if err != nil {
			return 0, fmt.Errorf("failed to update episode: %w", err)
		}
	}

	var res sql.Result
	if cursor.Advance {
		res, err = tx.Exec(`
			UPDATE feeds
			SET next_start = ?, exhausted = ?, last_fetched_at = ?, next_fetch_at = ?, updated_at = ?
			WHERE name = ?
		`, cursor.NextStart, cursor.Exhausted, now, cursor.NextFetch.Unix(), now, feedName)
	} else {
		res, err = tx.Exec(`
			UPDATE feeds
			SET last_fetched_at = ?, next_fetch_at = ?, updated_at = ?
			WHERE name = ?
		`, now, cursor.NextFetch.Unix(), now, feedName)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update feed cursor: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return 0, fmt.Errorf("feed '%s' not found", feedName)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit window: %w", err)
	}

	return inserted, nil
}

func (r *SQLiteEpisodeRepository) queryEpisodes(query string, args ...any) ([]Episode, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episode row: %w", err)
		}
		episodes = append(episodes, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating episode rows: %w", err)
	}

	return episodes, nil
}

// GetVisibleEpisodes returns non-filtered episodes, newest first.
func (r *SQLiteEpisodeRepository) GetVisibleEpisodes(feedName string, limit int) ([]Episode, error) {
	episodes, err := r.queryEpisodes(`
		SELECT `+episodeColumns+`
		FROM episodes
		WHERE feed_name = ? AND is_filtered = 0
		ORDER BY timestamp DESC, created_at DESC
		LIMIT ?
	`, feedName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get visible episodes: %w", err)
	}
	return episodes, nil
}

func (r *SQLiteEpisodeRepository) GetAllEpisodes(feedName string) ([]Episode, error) {
	episodes, err := r.queryEpisodes(`
		SELECT `+episodeColumns+`
		FROM episodes
		WHERE feed_name = ?
		ORDER BY timestamp DESC, created_at DESC
	`, feedName)
	if err != nil {
		return nil, fmt.Errorf("failed to get all episodes: %w", err)
	}
	return episodes, nil
}

func (r *SQLiteEpisodeRepository) GetEpisodeCount(feedName string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM episodes WHERE feed_name = ?", feedName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get episode count: %w", err)
	}
	return count, nil
}

func (r *SQLiteEpisodeRepository) GetEpisodeStats(feedName string) (EpisodeStats, error) {
	var stats EpisodeStats
	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_filtered = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_filtered = 1 THEN 1 ELSE 0 END), 0)
		FROM episodes
		WHERE feed_name = ?
	`, feedName).Scan(&stats.Total, &stats.Visible, &stats.Filtered)
	if err != nil {
		return EpisodeStats{}, fmt.Errorf("failed to get episode stats: %w", err)
	}
	return stats, nil
}

func (r *SQLiteEpisodeRepository) UpdateEpisodeFilterStatus(episodeID string, isFiltered bool, reason string) error {
	_, err := r.db.Exec(`
		UPDATE episodes SET is_filtered = ?, filter_reason = ?, updated_at = ? WHERE id = ?
	`, isFiltered, reason, time.Now().Unix(), episodeID)
	if err != nil {
		return fmt.Errorf("failed to update episode filter status: %w", err)
	}
	return nil
}

// GetEpisodesForShowNotes returns visible episodes with a link whose show
// notes are still pending, newest first.
func (r *SQLiteEpisodeRepository) GetEpisodesForShowNotes(feedName string, limit int) ([]EpisodeForShowNotes, error) {
	rows, err := r.db.Query(`
		SELECT id, link
		FROM episodes
		WHERE feed_name = ?
		  AND is_filtered = 0
		  AND link != ''
		  AND show_notes_status = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, feedName, ShowNotesPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get episodes for show notes: %w", err)
	}
	defer rows.Close()

	var episodes []EpisodeForShowNotes
	for rows.Next() {
		var e EpisodeForShowNotes
		if err := rows.Scan(&e.ID, &e.Link); err != nil {
			return nil, fmt.Errorf("failed to scan episode row: %w", err)
		}
		episodes = append(episodes, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating episode rows: %w", err)
	}

	return episodes, nil
}

func (r *SQLiteEpisodeRepository) UpdateShowNotes(episodeID string, notes string, status string, errorMsg string) error {
	now := time.Now().Unix()
	_, err := r.db.Exec(`
		UPDATE episodes
		SET show_notes = ?, show_notes_status = ?, show_notes_error = ?,
		    show_notes_attempts = show_notes_attempts + 1,
		    show_notes_extracted_at = ?, updated_at = ?
		WHERE id = ?
	`, notes, status, errorMsg, now, now, episodeID)
	if err != nil {
		return fmt.Errorf("failed to update show notes: %w", err)
	}
	return nil
}
