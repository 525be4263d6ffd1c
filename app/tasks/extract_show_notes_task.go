package tasks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lysyi3m/pod-comb/app/database"
	"github.com/lysyi3m/pod-comb/app/feed"
)

const (
	defaultShowNotesBatch = 20
	maxPageSize           = 5 << 20
)

type ExtractShowNotesTask struct {
	Task
	FeedConfig  *feed.Config
	httpClient  *http.Client
	extractor   *feed.ShowNotesExtractor
	episodeRepo database.EpisodeRepository
	userAgent   string
}

func NewExtractShowNotesTask(feedName string, feedConfig *feed.Config, httpClient *http.Client, extractor *feed.ShowNotesExtractor, episodeRepo database.EpisodeRepository, userAgent string) *ExtractShowNotesTask {
	return &ExtractShowNotesTask{
		Task:        NewTask(TaskTypeExtractShowNotes, feedName),
		FeedConfig:  feedConfig,
		httpClient:  httpClient,
		extractor:   extractor,
		episodeRepo: episodeRepo,
		userAgent:   userAgent,
	}
}

func (t *ExtractShowNotesTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.FeedConfig.Settings.ExtractShowNotes {
		slog.Debug("Show notes extraction disabled for feed", "feed", t.FeedName)
		return nil
	}

	limit := t.FeedConfig.Settings.MaxItems
	if limit <= 0 {
		limit = defaultShowNotesBatch
	}

	episodes, err := t.episodeRepo.GetEpisodesForShowNotes(t.FeedName, limit)
	if err != nil {
		return fmt.Errorf("failed to get episodes for show notes: %w", err)
	}

	if len(episodes) == 0 {
		slog.Debug("No episodes need show notes", "feed", t.FeedName)
		return nil
	}

	successCount := 0
	errorCount := 0

	for _, e := range episodes {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := t.extractForEpisode(ctx, e)
		if err != nil {
			slog.Error("Failed to extract show notes", "episode_id", e.ID, "url", e.Link, "error", err)
			errorCount++

			err = t.episodeRepo.UpdateShowNotes(e.ID, "", database.ShowNotesFailed, err.Error())
			if err != nil {
				slog.Error("Failed to update show notes status", "episode_id", e.ID, "error", err)
			}
		} else {
			successCount++
		}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"success", successCount,
		"errors", errorCount)

	return nil
}

func (t *ExtractShowNotesTask) extractForEpisode(ctx context.Context, e database.EpisodeForShowNotes) error {
	if e.Link == "" {
		return fmt.Errorf("episode has no link")
	}

	data, err := t.fetchPage(ctx, e.Link)
	if err != nil {
		return fmt.Errorf("failed to fetch episode page: %w", err)
	}

	notes, err := t.extractor.Run(data, e.Link)
	if err != nil {
		return fmt.Errorf("failed to extract show notes: %w", err)
	}

	if err := t.episodeRepo.UpdateShowNotes(e.ID, notes, database.ShowNotesSuccess, ""); err != nil {
		return fmt.Errorf("failed to update show notes: %w", err)
	}

	slog.Debug("Show notes extracted successfully", "episode_id", e.ID, "url", e.Link, "content_length", len(notes))
	return nil
}

func (t *ExtractShowNotesTask) fetchPage(ctx context.Context, url string) ([]byte, error) {
	timeout := time.Duration(t.FeedConfig.Settings.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, fmt.Errorf("content type is not HTML: %s", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
