package tasks

// TaskSchedulerInterface is what the HTTP API needs from the scheduler:
// queueing tasks built outside the periodic loop.
//
//	scheduler := NewScheduler(configCache, feedRepo, episodeRepo, fetcher, httpClient, channels, filterer, extractor, metrics)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewRefilterFeedTask(...))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
