package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SQLiteFeedRepository struct {
	db *DB
}

func NewFeedRepository(db *DB) *SQLiteFeedRepository {
	return &SQLiteFeedRepository{db: db}
}

const feedColumns = `id, name, feed_url, start_offset, next_start, exhausted,
	link, title, description, image_url, language,
	last_fetched_at, next_fetch_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*Feed, error) {
	var feed Feed
	var lastFetched, nextFetch sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&feed.ID, &feed.Name, &feed.FeedURL, &feed.StartOffset, &feed.NextStart, &feed.Exhausted,
		&feed.Link, &feed.Title, &feed.Description, &feed.ImageURL, &feed.Language,
		&lastFetched, &nextFetch, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	feed.LastFetchedAt = timeOrNil(lastFetched)
	feed.NextFetchAt = timeOrNil(nextFetch)
	feed.CreatedAt = time.Unix(createdAt, 0).UTC()
	feed.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &feed, nil
}

// GetFeed returns nil without error when the feed does not exist.
func (r *SQLiteFeedRepository) GetFeed(feedName string) (*Feed, error) {
	row := r.db.QueryRow(`SELECT `+feedColumns+` FROM feeds WHERE name = ?`, feedName)

	feed, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	return feed, nil
}

func (r *SQLiteFeedRepository) GetFeeds() ([]Feed, error) {
	rows, err := r.db.Query(`SELECT ` + feedColumns + ` FROM feeds ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	return feeds, nil
}

func (r *SQLiteFeedRepository) GetFeedCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM feeds").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

func (r *SQLiteFeedRepository) UpsertFeed(feedName, feedURL string, startOffset int64) (bool, error) {
	existing, err := r.GetFeed(feedName)
	if err != nil {
		return false, fmt.Errorf("failed to check existing feed: %w", err)
	}

	now := time.Now().Unix()

	if existing == nil {
		_, err = r.db.Exec(`
			INSERT INTO feeds (id, name, feed_url, start_offset, next_start, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), feedName, feedURL, startOffset, startOffset, now, now)
		if err != nil {
			return false, fmt.Errorf("failed to insert feed: %w", err)
		}
		return false, nil
	}

	if existing.FeedURL != feedURL {
		// A different document: offsets of the old one mean nothing.
		_, err = r.db.Exec(`
			UPDATE feeds
			SET feed_url = ?, start_offset = ?, next_start = ?, exhausted = 0,
			    title = '', link = '', description = '', image_url = '', language = '',
			    next_fetch_at = NULL, updated_at = ?
			WHERE name = ?
		`, feedURL, startOffset, startOffset, now, feedName)
		if err != nil {
			return false, fmt.Errorf("failed to reset feed: %w", err)
		}
		return true, nil
	}

	_, err = r.db.Exec(`
		UPDATE feeds SET start_offset = ?, updated_at = ? WHERE name = ?
	`, startOffset, now, feedName)
	if err != nil {
		return false, fmt.Errorf("failed to update feed: %w", err)
	}

	return false, nil
}

func (r *SQLiteFeedRepository) UpdateFeedMetadata(feedName string, metadata FeedMetadata) error {
	_, err := r.db.Exec(`
		UPDATE feeds
		SET title = ?, link = ?, description = ?, image_url = ?, language = ?, updated_at = ?
		WHERE name = ?
	`, metadata.Title, metadata.Link, metadata.Description, metadata.ImageURL, metadata.Language,
		time.Now().Unix(), feedName)
	if err != nil {
		return fmt.Errorf("failed to update feed metadata: %w", err)
	}
	return nil
}

func (r *SQLiteFeedRepository) MarkExhausted(feedName string, nextFetch time.Time) error {
	now := time.Now().Unix()
	_, err := r.db.Exec(`
		UPDATE feeds
		SET exhausted = 1, last_fetched_at = ?, next_fetch_at = ?, updated_at = ?
		WHERE name = ?
	`, now, nextFetch.Unix(), now, feedName)
	if err != nil {
		return fmt.Errorf("failed to mark feed exhausted: %w", err)
	}
	return nil
}

func (r *SQLiteFeedRepository) ScheduleNextFetch(feedName string, nextFetch time.Time) error {
	now := time.Now().Unix()
	_, err := r.db.Exec(`
		UPDATE feeds
		SET last_fetched_at = ?, next_fetch_at = ?, updated_at = ?
		WHERE name = ?
	`, now, nextFetch.Unix(), now, feedName)
	if err != nil {
		return fmt.Errorf("failed to update next fetch time: %w", err)
	}
	return nil
}

func (r *SQLiteFeedRepository) ResetCursor(feedName string, offset int64) error {
	res, err := r.db.Exec(`
		UPDATE feeds
		SET next_start = ?, exhausted = 0, next_fetch_at = NULL, updated_at = ?
		WHERE name = ?
	`, offset, time.Now().Unix(), feedName)
	if err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("feed '%s' not found", feedName)
	}
	return nil
}
