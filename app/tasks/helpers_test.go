package tasks

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/lysyi3m/pod-comb/app/database"
	"github.com/lysyi3m/pod-comb/app/feed"
	"github.com/lysyi3m/pod-comb/app/fetch"
)

const testFeedURL = "http://cdn.fm/feed.xml"

// docFetcher serves ranges of an in-memory document the way an HTTP
// server honoring Range would.
type docFetcher struct {
	data  []byte
	calls int
	fail  map[int]error
}

func (f *docFetcher) Fetch(_ context.Context, _ string, r fetch.ByteRange) (io.ReadCloser, error) {
	f.calls++
	if err, ok := f.fail[f.calls]; ok {
		return nil, err
	}
	if r.Start >= int64(len(f.data)) {
		return nil, fetch.ErrRangeNotSatisfiable
	}
	end := min(r.End+1, int64(len(f.data)))
	return io.NopCloser(bytes.NewReader(f.data[r.Start:end])), nil
}

func loadSample(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("../parser/testdata/samplerss.xml")
	if err != nil {
		t.Fatal(err)
	}
	return data
}

type store struct {
	feeds    *database.SQLiteFeedRepository
	episodes *database.SQLiteEpisodeRepository
}

func setupStore(t *testing.T) store {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "podcomb.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return store{
		feeds:    database.NewFeedRepository(db),
		episodes: database.NewEpisodeRepository(db),
	}
}

func testFeedConfig(name string) *feed.Config {
	return &feed.Config{
		Name: name,
		URL:  testFeedURL,
		Settings: feed.ConfigSettings{
			Enabled:         true,
			RefreshInterval: 3600,
			MaxItems:        50,
			Timeout:         30,
			WindowSize:      5113,
			SegmentSize:     2560,
			MinBytes:        64,
		},
	}
}

func registerFeed(t *testing.T, s store, cfg *feed.Config) {
	t.Helper()
	if _, err := s.feeds.UpsertFeed(cfg.Name, cfg.URL, cfg.Settings.StartOffset); err != nil {
		t.Fatalf("Failed to register feed: %v", err)
	}
}

func getFeed(t *testing.T, s store, name string) *database.Feed {
	t.Helper()
	f, err := s.feeds.GetFeed(name)
	if err != nil || f == nil {
		t.Fatalf("Failed to get feed %s: %v", name, err)
	}
	return f
}

func newIngestTask(cfg *feed.Config, fetcher fetch.RangeFetcher, s store) *IngestWindowTask {
	return NewIngestWindowTask(cfg.Name, cfg, fetcher, feed.NewFilterer(), s.feeds, s.episodes, nil, nil)
}
