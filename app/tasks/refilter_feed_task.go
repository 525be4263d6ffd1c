package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/pod-comb/app/database"
	"github.com/lysyi3m/pod-comb/app/feed"
)

type RefilterFeedTask struct {
	Task
	FeedConfig  *feed.Config
	filterer    *feed.Filterer
	episodeRepo database.EpisodeRepository
}

func NewRefilterFeedTask(feedName string, feedConfig *feed.Config, filterer *feed.Filterer, episodeRepo database.EpisodeRepository) *RefilterFeedTask {
	return &RefilterFeedTask{
		Task:        NewTask(TaskTypeRefilterFeed, feedName),
		FeedConfig:  feedConfig,
		filterer:    filterer,
		episodeRepo: episodeRepo,
	}
}

func (t *RefilterFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	stored, err := t.episodeRepo.GetAllEpisodes(t.FeedName)
	if err != nil {
		return fmt.Errorf("failed to get feed episodes: %w", err)
	}

	refiltered := t.filterer.Run(stored, t.FeedConfig)

	updatedCount := 0
	errorCount := 0

	for i, e := range refiltered {
		previous := stored[i]
		if previous.IsFiltered == e.IsFiltered && previous.FilterReason == e.FilterReason {
			continue
		}

		if err := t.episodeRepo.UpdateEpisodeFilterStatus(previous.ID, e.IsFiltered, e.FilterReason); err != nil {
			slog.Error("Failed to update episode filter status", "episode_id", previous.ID, "error", err)
			errorCount++
		} else {
			updatedCount++
		}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"success", updatedCount,
		"errors", errorCount)

	return nil
}
