package api

import (
	"time"

	"github.com/lysyi3m/pod-comb/app/database"
	"github.com/lysyi3m/pod-comb/app/episode"
	"github.com/lysyi3m/pod-comb/app/feed"
	"github.com/lysyi3m/pod-comb/app/fetch"
	"github.com/lysyi3m/pod-comb/app/metrics"
	"github.com/lysyi3m/pod-comb/app/tasks"
)

type GeneratorInterface interface {
	Run(feed database.Feed, episodes []database.Episode) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type Handler struct {
	feedRepo    database.FeedRepository
	episodeRepo database.EpisodeRepository
	generator   GeneratorInterface
	configCache *feed.ConfigCache
	filterer    *feed.Filterer
	channels    *feed.ChannelReader
	fetcher     fetch.RangeFetcher
	scheduler   tasks.TaskSchedulerInterface
	metrics     *metrics.Metrics
	defaults    feed.WindowDefaults
	location    *time.Location
}

// WindowRequest asks for a one-shot parse of a byte window. End wins over
// WindowSize when both are set.
type WindowRequest struct {
	URL               string `json:"url" binding:"required"`
	Start             int64  `json:"start"`
	End               int64  `json:"end"`
	WindowSize        int64  `json:"window_size"`
	SegmentSize       int64  `json:"segment_size"`
	MinBytes          int64  `json:"min_bytes"`
	DescriptionFormat string `json:"description_format"`
}

type WindowResponse struct {
	NextStart int64             `json:"next_start"`
	Count     int               `json:"count"`
	Fetches   int               `json:"fetches"`
	Anomalies int               `json:"anomalies"`
	EOF       bool              `json:"eof"`
	Episodes  []episode.Episode `json:"episodes"`
	Error     string            `json:"error,omitempty"`
}
