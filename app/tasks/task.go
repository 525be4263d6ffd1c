package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/pod-comb/app/fetch"
	"github.com/lysyi3m/pod-comb/app/window"
)

type TaskType string

const (
	TaskTypeIngestWindow     TaskType = "ingest_window"
	TaskTypeExtractShowNotes TaskType = "extract_show_notes"
	TaskTypeRefilterFeed     TaskType = "refilter_feed"
	TaskTypeSyncFeedConfig   TaskType = "sync_feed_config"
)

const DefaultMaxRetries = 3

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetFeedName() string
	GetRetryCount() int
	IncrementRetryCount()
	ShouldRetry(err error) bool
	Start()
	GetDuration() time.Duration
	LogAttrs() []any
}

// Task carries what every task shares: identity, attempts and, for tasks
// that read a feed, the window the latest attempt covered.
type Task struct {
	ID         string
	Type       TaskType
	FeedName   string
	RetryCount int
	MaxRetries int
	StartedAt  *time.Time

	// Window is the byte range the latest attempt asked for and
	// NextStart the cursor it left behind. Both stay zero for tasks that
	// do not read a feed.
	Window    fetch.ByteRange
	NextStart int64
}

func NewTask(taskType TaskType, feedName string) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		FeedName:   feedName,
		MaxRetries: DefaultMaxRetries,
	}
}

func (t *Task) GetID() string       { return t.ID }
func (t *Task) GetType() TaskType   { return t.Type }
func (t *Task) GetFeedName() string { return t.FeedName }
func (t *Task) GetRetryCount() int  { return t.RetryCount }

func (t *Task) IncrementRetryCount() {
	t.RetryCount++
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

// ShouldRetry reports whether err is worth another attempt. Permanent
// failures and window settings the controller rejects never are; a
// retried window resumes from the cursor the failed one saved.
func (t *Task) ShouldRetry(err error) bool {
	if t.RetryCount >= t.MaxRetries {
		return false
	}
	var perm *permanentError
	switch {
	case errors.As(err, &perm),
		errors.Is(err, window.ErrInvalidOptions),
		errors.Is(err, fetch.ErrInvalidRange):
		return false
	}
	return true
}

// LogAttrs describes the task for log lines about it.
func (t *Task) LogAttrs() []any {
	attrs := []any{
		"type", string(t.Type),
		"id", t.ID,
		"feed", t.FeedName,
		"retry_count", t.RetryCount,
		"max_retries", t.MaxRetries,
	}
	if t.Window != (fetch.ByteRange{}) {
		attrs = append(attrs, "range", t.Window.Header(), "next_start", t.NextStart)
	}
	return attrs
}

// permanentError marks a failure retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}
