package database

import (
	"time"

	"github.com/lysyi3m/pod-comb/app/episode"
)

type Feed struct {
	ID          string // Database UUID
	Name        string // Configuration feed identifier derived from filename
	FeedURL     string
	StartOffset int64 // Configured offset the cursor starts from
	NextStart   int64 // Committed offset the next window starts from
	Exhausted   bool  // Cursor reached the end of the document
	Link        string
	Title       string
	Description string
	ImageURL    string
	Language    string

	LastFetchedAt *time.Time
	NextFetchAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type FeedMetadata struct {
	Title       string
	Link        string
	Description string
	ImageURL    string
	Language    string
}

const (
	ShowNotesPending = "pending"
	ShowNotesSuccess = "success"
	ShowNotesFailed  = "failed"
	ShowNotesSkipped = "skipped"
)

// Episode is a stored episode together with its per-feed state.
type Episode struct {
	episode.Episode

	ID           string
	FeedName     string
	IsFiltered   bool
	FilterReason string

	ShowNotes            string
	ShowNotesStatus      string
	ShowNotesError       string
	ShowNotesAttempts    int
	ShowNotesExtractedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type EpisodeStats struct {
	Total    int
	Visible  int
	Filtered int
}

// WindowCursor is the feed state written together with a window's
// episodes.
type WindowCursor struct {
	NextStart int64
	// Advance is false for head refreshes, which must not move the cursor.
	Advance   bool
	Exhausted bool
	NextFetch time.Time
}

type EpisodeForShowNotes struct {
	ID   string
	Link string
}
