package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/pod-comb/app/database"
	"github.com/lysyi3m/pod-comb/app/feed"
)

type SyncFeedConfigTask struct {
	Task
	FeedConfig *feed.Config
	feedRepo   database.FeedRepository
	channels   *feed.ChannelReader
}

// NewSyncFeedConfigTask registers a feed config in the database. With a
// non-nil channel reader it also reads channel metadata for feeds that have none
// yet or whose URL changed.
func NewSyncFeedConfigTask(feedName string, feedConfig *feed.Config, feedRepo database.FeedRepository, channels *feed.ChannelReader) *SyncFeedConfigTask {
	return &SyncFeedConfigTask{
		Task:       NewTask(TaskTypeSyncFeedConfig, feedName),
		FeedConfig: feedConfig,
		feedRepo:   feedRepo,
		channels:   channels,
	}
}

func (t *SyncFeedConfigTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	urlChanged, err := t.feedRepo.UpsertFeed(
		t.FeedConfig.Name,
		t.FeedConfig.URL,
		t.FeedConfig.Settings.StartOffset)
	if err != nil {
		return fmt.Errorf("failed to sync feed config to database: %w", err)
	}

	if urlChanged {
		slog.Info("Feed URL changed, cursor reset", "feed", t.FeedName, "url", t.FeedConfig.URL, "offset", t.FeedConfig.Settings.StartOffset)
	}

	refreshed := false
	if t.channels != nil {
		refreshed, err = t.readChannel(ctx, urlChanged)
		if err != nil {
			// metadata is cosmetic, episodes are ingested without it
			slog.Warn("Failed to read channel metadata", "feed", t.FeedName, "error", err)
		}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"url_changed", urlChanged,
		"refreshed", refreshed)

	return nil
}

func (t *SyncFeedConfigTask) readChannel(ctx context.Context, force bool) (bool, error) {
	f, err := t.feedRepo.GetFeed(t.FeedName)
	if err != nil {
		return false, fmt.Errorf("failed to get feed: %w", err)
	}
	if f == nil || (f.Title != "" && !force) {
		return false, nil
	}

	metadata, err := t.channels.Run(ctx, t.FeedConfig.URL)
	if err != nil {
		return false, err
	}

	err = t.feedRepo.UpdateFeedMetadata(t.FeedName, database.FeedMetadata{
		Title:       metadata.Title,
		Link:        metadata.Link,
		Description: metadata.Description,
		ImageURL:    metadata.ImageURL,
		Language:    metadata.Language,
	})
	if err != nil {
		return false, fmt.Errorf("failed to store feed metadata: %w", err)
	}

	return true, nil
}
