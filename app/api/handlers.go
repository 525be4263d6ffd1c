package api

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/pod-comb/app/database"
	"github.com/lysyi3m/pod-comb/app/episode"
	"github.com/lysyi3m/pod-comb/app/feed"
	"github.com/lysyi3m/pod-comb/app/fetch"
	"github.com/lysyi3m/pod-comb/app/metrics"
	"github.com/lysyi3m/pod-comb/app/parser"
	"github.com/lysyi3m/pod-comb/app/tasks"
	"github.com/lysyi3m/pod-comb/app/window"
)

const defaultEpisodeLimit = 100

func NewHandler(configCache *feed.ConfigCache, feedRepo database.FeedRepository,
	episodeRepo database.EpisodeRepository, filterer *feed.Filterer, channels *feed.ChannelReader,
	fetcher fetch.RangeFetcher, scheduler tasks.TaskSchedulerInterface, m *metrics.Metrics,
	defaults feed.WindowDefaults, location *time.Location) *Handler {
	return &Handler{
		feedRepo:    feedRepo,
		episodeRepo: episodeRepo,
		generator:   feed.NewGenerator(),
		configCache: configCache,
		filterer:    filterer,
		channels:    channels,
		fetcher:     fetcher,
		scheduler:   scheduler,
		metrics:     m,
		defaults:    defaults,
		location:    cmp.Or(location, time.UTC),
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	feedConfig, err := h.configCache.GetConfig(name)
	if err != nil {
		slog.Error("Feed configuration not found", "feed", name, "error", err)
		c.Status(http.StatusNotFound)
		return
	}

	feed, err := h.feedRepo.GetFeed(name)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	if feed == nil {
		slog.Error("Feed not found in database", "feed", name)
		c.Status(http.StatusNotFound)
		return
	}

	episodes, err := h.episodeRepo.GetVisibleEpisodes(name, feedConfig.Settings.MaxItems)
	if err != nil {
		slog.Error("Database error", "operation", "get_episodes", "feed", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(*feed, episodes)
	if err != nil {
		slog.Error("RSS generation error", "feed", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/rss+xml; charset=utf-8")
	c.Header("X-Feed-Episodes", strconv.Itoa(len(episodes)))
	c.Header("X-Feed-Name", name)
	c.Header("X-Last-Updated", feed.UpdatedAt.Format(time.RFC3339))

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().In(h.location).Format(time.RFC3339),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(); err == nil {
		health["feeds"] = feedCount
	} else {
		health["status"] = "degraded"
		health["database_error"] = err.Error()
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIListFeeds(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	feeds := make([]map[string]interface{}, 0, len(configs))

	for _, feedConfig := range configs {
		feedInfo := map[string]interface{}{
			"name":             feedConfig.Name,
			"url":              feedConfig.URL,
			"title":            "",
			"enabled":          feedConfig.Settings.Enabled,
			"max_items":        feedConfig.Settings.MaxItems,
			"refresh_interval": (time.Duration(feedConfig.Settings.RefreshInterval) * time.Second).String(),
			"window_size":      feedConfig.Settings.WindowSize,
			"filters":          len(feedConfig.Filters),
		}

		if feed, err := h.feedRepo.GetFeed(feedConfig.Name); err == nil && feed != nil {
			feedInfo["title"] = feed.Title
			feedInfo["next_start"] = feed.NextStart
			feedInfo["exhausted"] = feed.Exhausted
			feedInfo["last_fetched_at"] = feed.LastFetchedAt
			feedInfo["next_fetch_at"] = feed.NextFetchAt
			feedInfo["updated_at"] = feed.UpdatedAt
		}

		if episodeCount, err := h.episodeRepo.GetEpisodeCount(feedConfig.Name); err == nil {
			feedInfo["episode_count"] = episodeCount
		}

		feeds = append(feeds, feedInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"feeds": feeds,
		"total": len(feeds),
	})
}

// lookupFeed resolves the :name parameter to its config and stored row,
// writing the error response itself when either is missing.
func (h *Handler) lookupFeed(c *gin.Context) (*feed.Config, *database.Feed, bool) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing feed name parameter"})
		return nil, nil, false
	}

	feedConfig, err := h.configCache.GetConfig(name)
	if err != nil {
		slog.Error("Feed configuration not found", "feed", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed configuration not found"})
		return nil, nil, false
	}

	feed, err := h.feedRepo.GetFeed(name)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, nil, false
	}

	if feed == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found in database"})
		return nil, nil, false
	}

	return feedConfig, feed, true
}

func (h *Handler) APIGetFeedDetails(c *gin.Context) {
	feedConfig, feed, ok := h.lookupFeed(c)
	if !ok {
		return
	}

	details := map[string]interface{}{
		"name":             feed.Name,
		"url":              feedConfig.URL,
		"title":            feed.Title,
		"enabled":          feedConfig.Settings.Enabled,
		"max_items":        feedConfig.Settings.MaxItems,
		"refresh_interval": (time.Duration(feedConfig.Settings.RefreshInterval) * time.Second).String(),
		"timeout":          (time.Duration(feedConfig.Settings.Timeout) * time.Second).String(),
		"filters":          feedConfig.Filters,
		"window": map[string]interface{}{
			"window_size":  feedConfig.Settings.WindowSize,
			"segment_size": feedConfig.Settings.SegmentSize,
			"min_bytes":    feedConfig.Settings.MinBytes,
			"start_offset": feedConfig.Settings.StartOffset,
		},
	}

	details["database"] = map[string]interface{}{
		"id":              feed.ID,
		"name":            feed.Name,
		"next_start":      feed.NextStart,
		"exhausted":       feed.Exhausted,
		"last_fetched_at": feed.LastFetchedAt,
		"next_fetch_at":   feed.NextFetchAt,
		"created_at":      feed.CreatedAt,
		"updated_at":      feed.UpdatedAt,
	}

	if stats, err := h.episodeRepo.GetEpisodeStats(feed.Name); err == nil {
		details["episodes"] = map[string]interface{}{
			"total":    stats.Total,
			"visible":  stats.Visible,
			"filtered": stats.Filtered,
		}
	}

	c.JSON(http.StatusOK, details)
}

// APIGetEpisodes lists visible episodes newest first, optionally only
// those published after the since timestamp.
func (h *Handler) APIGetEpisodes(c *gin.Context) {
	_, feed, ok := h.lookupFeed(c)
	if !ok {
		return
	}

	limit := defaultEpisodeLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = n
	}

	stored, err := h.episodeRepo.GetVisibleEpisodes(feed.Name, limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_episodes", "feed", feed.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	episodes := make([]episode.Episode, len(stored))
	for i, e := range stored {
		episodes[i] = e.Episode
	}

	if raw := c.Query("since"); raw != "" {
		since, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since parameter"})
			return
		}
		episodes = episode.Filter(episodes, episode.Since(since))
	}

	c.JSON(http.StatusOK, gin.H{
		"feed":     feed.Name,
		"count":    len(episodes),
		"episodes": episodes,
	})
}

func (h *Handler) APIReloadFeed(c *gin.Context) {
	_, feed, ok := h.lookupFeed(c)
	if !ok {
		return
	}
	name := feed.Name

	feedConfig, err := h.configCache.LoadConfig(name)
	if err != nil {
		slog.Error("Error reloading configuration", "feed", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to reload configuration",
			"details": err.Error(),
		})
		return
	}

	syncFeedTask := tasks.NewSyncFeedConfigTask(name, feedConfig, h.feedRepo, h.channels)
	if err := h.scheduler.EnqueueTask(syncFeedTask); err != nil {
		slog.Error("Error enqueueing sync task", "feed", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue sync task",
			"details": err.Error(),
		})
		return
	}

	refilterFeedTask := tasks.NewRefilterFeedTask(name, feedConfig, h.filterer, h.episodeRepo)
	if err := h.scheduler.EnqueueTask(refilterFeedTask); err != nil {
		slog.Error("Error enqueueing refilter task", "feed", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue refilter task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Configuration reloaded and tasks enqueued successfully",
		"feed": gin.H{
			"name":  name,
			"title": feed.Title,
			"url":   feedConfig.URL,
		},
		"tasks": []gin.H{
			{"id": syncFeedTask.ID, "type": syncFeedTask.Type},
			{"id": refilterFeedTask.ID, "type": refilterFeedTask.Type},
		},
	})
}

func (h *Handler) APIIngestFeed(c *gin.Context) {
	feedConfig, feed, ok := h.lookupFeed(c)
	if !ok {
		return
	}

	task := tasks.NewIngestWindowTask(feed.Name, feedConfig, h.fetcher, h.filterer,
		h.feedRepo, h.episodeRepo, h.metrics, h.location)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing ingest task", "feed", feed.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue ingest task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success":    true,
		"next_start": feed.NextStart,
		"exhausted":  feed.Exhausted,
		"task":       gin.H{"id": task.ID, "type": task.Type},
	})
}

// APIRewindFeed moves the cursor back to ?offset, or to the configured
// start offset, and clears the exhausted flag.
func (h *Handler) APIRewindFeed(c *gin.Context) {
	feedConfig, feed, ok := h.lookupFeed(c)
	if !ok {
		return
	}

	offset := feedConfig.Settings.StartOffset
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset parameter"})
			return
		}
		offset = n
	}

	if err := h.feedRepo.ResetCursor(feed.Name, offset); err != nil {
		slog.Error("Database error", "operation", "reset_cursor", "feed", feed.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Feed cursor rewound", "feed", feed.Name, "from", feed.NextStart, "to", offset)

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"feed":       feed.Name,
		"next_start": offset,
	})
}

// APIParseWindow parses one byte window of any feed URL without storing
// anything. The response carries the episodes and the offset to pass as
// start of the following window.
func (h *Handler) APIParseWindow(c *gin.Context) {
	var req WindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	format, err := episode.ParseDescriptionFormat(req.DescriptionFormat)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	segmentSize := cmp.Or(req.SegmentSize, h.defaults.SegmentSize)
	target := fetch.ByteRange{Start: req.Start, End: req.End}
	if req.End == 0 {
		target.End = req.Start + cmp.Or(req.WindowSize, h.defaults.WindowSize)
	}

	controller, err := window.NewController(h.fetcher, parser.NewParser(), window.Options{
		SegmentSize: segmentSize,
		MinBytes:    cmp.Or(req.MinBytes, h.defaults.MinBytes),
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, runErr := controller.Run(c.Request.Context(), req.URL, target)

	resp := WindowResponse{NextStart: req.Start, Episodes: []episode.Episode{}}
	if res != nil {
		normalizer := episode.NewNormalizer(episode.NewDateParser(h.location), episode.Options{
			Format:   format,
			Location: h.location,
		})
		resp.Episodes = normalizer.Run(res.Items)
		resp.NextStart = res.NextStart
		resp.Count = len(resp.Episodes)
		resp.Fetches = res.Fetches
		resp.Anomalies = res.Anomalies
		resp.EOF = res.EOF
	}

	if runErr != nil {
		resp.Error = runErr.Error()
		status := windowErrorStatus(runErr)
		slog.Warn("Window parse failed", "url", req.URL, "range", target.Header(), "status", status, "error", runErr)
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func windowErrorStatus(err error) int {
	switch {
	case errors.Is(err, window.ErrInvalidOptions):
		return http.StatusBadRequest
	case errors.Is(err, fetch.ErrRangeNotSatisfiable):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, window.ErrNoProgress):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
