package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lysyi3m/pod-comb/app/cfg"
	"github.com/lysyi3m/pod-comb/app/database"
	"github.com/lysyi3m/pod-comb/app/feed"
	"github.com/lysyi3m/pod-comb/app/fetch"
	"github.com/lysyi3m/pod-comb/app/metrics"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	taskTimeout   = 5 * time.Minute
	maxRetryDelay = 30 * time.Second
	queueSize     = 300
)

type Scheduler struct {
	feedRepo    database.FeedRepository
	episodeRepo database.EpisodeRepository
	configCache *feed.ConfigCache
	fetcher     fetch.RangeFetcher
	httpClient  *http.Client
	channels    *feed.ChannelReader
	filterer    *feed.Filterer
	extractor   *feed.ShowNotesExtractor
	metrics     *metrics.Metrics
	location    *time.Location
	userAgent   string
	interval    time.Duration
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(configCache *feed.ConfigCache, feedRepo database.FeedRepository,
	episodeRepo database.EpisodeRepository, fetcher fetch.RangeFetcher, httpClient *http.Client,
	channels *feed.ChannelReader, filterer *feed.Filterer, extractor *feed.ShowNotesExtractor,
	m *metrics.Metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		feedRepo:    feedRepo,
		episodeRepo: episodeRepo,
		configCache: configCache,
		fetcher:     fetcher,
		httpClient:  httpClient,
		channels:    channels,
		filterer:    filterer,
		extractor:   extractor,
		metrics:     m,
		location:    cfg.Location(),
		userAgent:   cfg.UserAgent,
		interval:    time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount: cfg.WorkerCount,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, queueSize),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		s.metrics.SetQueueDepth(len(s.taskQueue))
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) newIngestTask(feedConfig *feed.Config) *IngestWindowTask {
	return NewIngestWindowTask(feedConfig.Name, feedConfig, s.fetcher, s.filterer,
		s.feedRepo, s.episodeRepo, s.metrics, s.location)
}

func (s *Scheduler) enqueueStartupTasks() {
	feedConfigs := s.configCache.GetConfigs()
	if len(feedConfigs) == 0 {
		slog.Debug("No feed configurations found")
		return
	}

	slog.Debug("Processing feed configurations", "count", len(feedConfigs))

	for _, feedConfig := range feedConfigs {
		syncTask := NewSyncFeedConfigTask(feedConfig.Name, feedConfig, s.feedRepo, s.channels)
		if err := s.EnqueueTask(syncTask); err != nil {
			slog.Warn("Failed to enqueue SyncFeedConfigTask", "feed", feedConfig.Name, "error", err)
			continue
		}

		if !feedConfig.Settings.Enabled {
			slog.Debug("Feed disabled, skipping IngestWindowTask", "feed", feedConfig.Name)
			continue
		}

		if err := s.EnqueueTask(s.newIngestTask(feedConfig)); err != nil {
			slog.Warn("Failed to enqueue IngestWindowTask", "feed", feedConfig.Name, "error", err)
		}
	}
}

func (s *Scheduler) enqueueTasks() {
	feedConfigs := s.configCache.GetEnabledConfigs()
	if len(feedConfigs) == 0 {
		slog.Debug("No enabled feed configurations found")
		return
	}

	slog.Debug("Processing enabled feed configurations for task scheduling", "count", len(feedConfigs))

	for _, feedConfig := range feedConfigs {
		feed, err := s.feedRepo.GetFeed(feedConfig.Name)
		if err != nil {
			slog.Warn("Failed to get feed from database, skipping", "feed", feedConfig.Name, "error", err)
			continue
		}
		if feed == nil {
			slog.Warn("Feed not found in database, skipping", "feed", feedConfig.Name)
			continue
		}

		now := time.Now().UTC()
		if feed.NextFetchAt != nil && feed.NextFetchAt.After(now) {
			slog.Debug("Feed not due for refresh yet", "feed", feedConfig.Name, "next_fetch_at", feed.NextFetchAt)
		} else if err := s.EnqueueTask(s.newIngestTask(feedConfig)); err != nil {
			slog.Warn("Failed to enqueue IngestWindowTask", "feed", feedConfig.Name, "error", err)
		}

		if feedConfig.Settings.ExtractShowNotes {
			extractTask := NewExtractShowNotesTask(feedConfig.Name, feedConfig, s.httpClient, s.extractor, s.episodeRepo, s.userAgent)
			if err := s.EnqueueTask(extractTask); err != nil {
				slog.Warn("Failed to enqueue ExtractShowNotesTask", "feed", feedConfig.Name, "error", err)
			}
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.metrics.SetQueueDepth(len(s.taskQueue))
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		s.metrics.ObserveTask(string(task.GetType()), "success")
		return
	}

	slog.Error("Worker task execution failed", append([]any{"worker_id", workerID, "error", err}, task.LogAttrs()...)...)

	if !task.ShouldRetry(err) {
		s.metrics.ObserveTask(string(task.GetType()), "failed")
		slog.Error("Task failed", append(task.LogAttrs(), "last_error", err)...)
		return
	}

	s.metrics.ObserveTask(string(task.GetType()), "retried")
	task.IncrementRetryCount()
	retryDelay := retryBackoff(task.GetRetryCount())

	slog.Warn("Task retry scheduled", append(task.LogAttrs(), "delay", retryDelay.String())...)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-time.After(retryDelay):
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", task.LogAttrs()...)
			return
		}
		if retryErr := s.EnqueueTask(task); retryErr != nil {
			slog.Error("Failed to re-enqueue task for retry", append(task.LogAttrs(), "error", retryErr)...)
		}
	}()
}

// retryBackoff doubles from one second per attempt, capped at
// maxRetryDelay.
func retryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		return maxRetryDelay
	}
	return min(time.Duration(1<<uint(attempt-1))*time.Second, maxRetryDelay)
}
