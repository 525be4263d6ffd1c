package database

import (
	"time"
)

type FeedRepository interface {
	GetFeed(feedName string) (*Feed, error)
	GetFeeds() ([]Feed, error)
	GetFeedCount() (int, error)

	// UpsertFeed reports whether an existing feed changed its URL, in
	// which case its cursor was reset to startOffset.
	UpsertFeed(feedName, feedURL string, startOffset int64) (bool, error)
	UpdateFeedMetadata(feedName string, metadata FeedMetadata) error
	MarkExhausted(feedName string, nextFetch time.Time) error
	ScheduleNextFetch(feedName string, nextFetch time.Time) error
	ResetCursor(feedName string, offset int64) error
}

type EpisodeRepository interface {
	// SaveWindow stores episodes and the feed cursor atomically and
	// returns how many episodes were new.
	SaveWindow(feedName string, episodes []Episode, cursor WindowCursor) (int, error)

	GetVisibleEpisodes(feedName string, limit int) ([]Episode, error)
	GetAllEpisodes(feedName string) ([]Episode, error)
	GetEpisodeCount(feedName string) (int, error)
	GetEpisodeStats(feedName string) (EpisodeStats, error)

	UpdateEpisodeFilterStatus(episodeID string, isFiltered bool, reason string) error

	GetEpisodesForShowNotes(feedName string, limit int) ([]EpisodeForShowNotes, error)
	UpdateShowNotes(episodeID string, notes string, status string, errorMsg string) error
}
