package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lysyi3m/pod-comb/app/database"
	"github.com/lysyi3m/pod-comb/app/episode"
	"github.com/lysyi3m/pod-comb/app/feed"
	"github.com/lysyi3m/pod-comb/app/fetch"
	"github.com/lysyi3m/pod-comb/app/metrics"
	"github.com/lysyi3m/pod-comb/app/parser"
	"github.com/lysyi3m/pod-comb/app/window"
)

// IngestWindowTask reads the next window of a feed from its stored cursor
// and saves the episodes found there together with the advanced cursor.
//
// Once a feed is exhausted the cursor stays at the end of the document
// and every run re-reads the head window from start_offset instead, where
// podcast hosts prepend new episodes.
type IngestWindowTask struct {
	Task
	FeedConfig  *feed.Config
	fetcher     fetch.RangeFetcher
	filterer    *feed.Filterer
	feedRepo    database.FeedRepository
	episodeRepo database.EpisodeRepository
	metrics     *metrics.Metrics
	location    *time.Location
}

func NewIngestWindowTask(feedName string, feedConfig *feed.Config, fetcher fetch.RangeFetcher,
	filterer *feed.Filterer, feedRepo database.FeedRepository, episodeRepo database.EpisodeRepository,
	m *metrics.Metrics, location *time.Location) *IngestWindowTask {
	if location == nil {
		location = time.UTC
	}
	return &IngestWindowTask{
		Task:        NewTask(TaskTypeIngestWindow, feedName),
		FeedConfig:  feedConfig,
		fetcher:     fetcher,
		filterer:    filterer,
		feedRepo:    feedRepo,
		episodeRepo: episodeRepo,
		metrics:     m,
		location:    location,
	}
}

func (t *IngestWindowTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	settings := t.FeedConfig.Settings
	if !settings.Enabled {
		slog.Debug("Feed disabled, skipping", "feed", t.FeedName)
		return nil
	}

	f, err := t.feedRepo.GetFeed(t.FeedName)
	if err != nil {
		return fmt.Errorf("failed to get feed: %w", err)
	}
	if f == nil {
		return permanent(fmt.Errorf("feed '%s' not found in database", t.FeedName))
	}

	start, advance := f.NextStart, true
	if f.Exhausted {
		start, advance = f.StartOffset, false
	}

	runCtx := ctx
	if settings.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(settings.Timeout)*time.Second)
		defer cancel()
	}

	started := time.Now()
	res, segment, runErr := t.runWindow(runCtx, f.FeedURL, start)
	elapsed := time.Since(started)

	t.Window = fetch.ByteRange{Start: start, End: start + settings.WindowSize}
	if res != nil {
		t.NextStart = res.NextStart
	}

	var perm *permanentError
	if errors.As(runErr, &perm) {
		return runErr
	}

	nextFetch := time.Now().UTC().Add(time.Duration(settings.RefreshInterval) * time.Second)

	if runErr == nil && len(res.Items) == 0 && res.NextStart == start {
		t.metrics.ObserveWindow(t.FeedName, metrics.ResultStalled, res, 0, elapsed)
		slog.Warn("No complete episode within the largest segment, raise max_segment_size",
			"feed", t.FeedName,
			"start", start,
			"segment", humanize.IBytes(uint64(segment)),
			"fetches", res.Fetches)
		if err := t.feedRepo.ScheduleNextFetch(t.FeedName, nextFetch); err != nil {
			return fmt.Errorf("failed to schedule next fetch: %w", err)
		}
		return nil
	}

	exhausted := runErr != nil && endOfDocument(runErr, res)
	if runErr != nil && !exhausted && (res == nil || len(res.Items) == 0) {
		t.metrics.ObserveWindow(t.FeedName, metrics.ResultError, res, 0, elapsed)
		return fmt.Errorf("failed to read window at offset %d: %w", start, runErr)
	}

	if exhausted && (res == nil || len(res.Items) == 0) {
		t.metrics.ObserveWindow(t.FeedName, metrics.ResultExhausted, res, 0, elapsed)
		if err := t.feedRepo.MarkExhausted(t.FeedName, nextFetch); err != nil {
			return fmt.Errorf("failed to mark feed exhausted: %w", err)
		}
		slog.Info("Feed exhausted", "feed", t.FeedName, "offset", start, "reason", runErr)
		return nil
	}

	episodes := t.normalize(res.Items, f)
	episodes = t.filterer.Run(episodes, t.FeedConfig)

	cursor := database.WindowCursor{
		NextStart: res.NextStart,
		Advance:   advance,
		Exhausted: exhausted || f.Exhausted,
		NextFetch: nextFetch,
	}
	inserted, err := t.episodeRepo.SaveWindow(t.FeedName, episodes, cursor)
	if err != nil {
		t.metrics.ObserveWindow(t.FeedName, metrics.ResultError, res, 0, elapsed)
		return fmt.Errorf("failed to save window: %w", err)
	}

	var committed int64
	if advance {
		committed = res.NextStart - start
	}

	result := metrics.ResultOK
	switch {
	case exhausted:
		result = metrics.ResultExhausted
	case runErr != nil:
		result = metrics.ResultError
	}
	t.metrics.ObserveWindow(t.FeedName, result, res, committed, elapsed)

	filtered := 0
	for _, e := range episodes {
		if e.IsFiltered {
			filtered++
		}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"head_refresh", !advance,
		"start", start,
		"next_start", res.NextStart,
		"committed", humanize.Bytes(uint64(max(committed, 0))),
		"fetches", res.Fetches,
		"total", len(episodes),
		"new", inserted,
		"filtered", filtered)

	// the saved prefix is kept; retrying resumes from its cursor
	if runErr != nil && !exhausted {
		return fmt.Errorf("window interrupted at offset %d: %w", res.NextStart, runErr)
	}

	return nil
}

// runWindow reads the window at start. While a single episode is larger
// than the segment the run finds nothing, so the segment is doubled up to
// the feed's segment limit. The segment of the last run is returned.
func (t *IngestWindowTask) runWindow(ctx context.Context, url string, start int64) (*window.Result, int64, error) {
	settings := t.FeedConfig.Settings
	limit := settings.SegmentLimit()
	p := parser.NewParser()

	for segment := settings.SegmentSize; ; segment = min(segment*2, limit) {
		controller, err := window.NewController(t.fetcher, p, window.Options{
			SegmentSize: segment,
			MinBytes:    settings.MinBytes,
		})
		if err != nil {
			return nil, segment, permanent(err)
		}

		res, err := controller.RunWindow(ctx, url, start, settings.WindowSize)
		if err != nil || len(res.Items) > 0 || res.NextStart != start || segment >= limit {
			return res, segment, err
		}

		slog.Info("No complete episode in segment, growing it",
			"feed", t.FeedName,
			"start", start,
			"segment", humanize.IBytes(uint64(segment)),
			"limit", humanize.IBytes(uint64(limit)))
	}
}

// endOfDocument reports whether a window failed because the cursor is at
// the end of the feed: the range starts past the last byte, or the tail
// after the last item is shorter than the progress minimum.
func endOfDocument(err error, res *window.Result) bool {
	if errors.Is(err, fetch.ErrRangeNotSatisfiable) {
		return true
	}
	return errors.Is(err, window.ErrNoProgress) && res != nil && res.EOF
}

func (t *IngestWindowTask) normalize(items []parser.RawItem, f *database.Feed) []database.Episode {
	format, err := episode.ParseDescriptionFormat(t.FeedConfig.Settings.DescriptionFormat)
	if err != nil {
		slog.Warn("Invalid description format, using text", "feed", t.FeedName, "error", err)
		format = episode.FormatText
	}

	normalizer := episode.NewNormalizer(episode.NewDateParser(t.location), episode.Options{
		Format:        format,
		FallbackImage: f.ImageURL,
		Location:      t.location,
	})

	status := database.ShowNotesSkipped
	if t.FeedConfig.Settings.ExtractShowNotes {
		status = database.ShowNotesPending
	}

	normalized := normalizer.Run(items)
	episodes := make([]database.Episode, len(normalized))
	for i, e := range normalized {
		episodes[i] = database.Episode{
			Episode:         e,
			FeedName:        t.FeedName,
			ShowNotesStatus: status,
		}
	}
	return episodes
}
