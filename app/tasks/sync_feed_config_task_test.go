package tasks

import (
	"context"
	"testing"

	"github.com/lysyi3m/pod-comb/app/feed"
)

func TestSyncFeedConfigTaskReadsChannel(t *testing.T) {
	s := setupStore(t)
	cfg := testFeedConfig("night-radio")
	fetcher := &docFetcher{data: loadSample(t)}
	channels := feed.NewChannelReader(fetcher, 4096)

	if err := NewSyncFeedConfigTask(cfg.Name, cfg, s.feeds, channels).Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	f := getFeed(t, s, "night-radio")
	if f.Title != "Night Radio 夜话" {
		t.Errorf("Expected channel title, got %q", f.Title)
	}
	if f.ImageURL != "http://cdn.fm/cover.jpg" {
		t.Errorf("Expected channel image, got %q", f.ImageURL)
	}
	if f.Language != "zh-cn" {
		t.Errorf("Expected channel language, got %q", f.Language)
	}

	// metadata is known, a second sync does not fetch the head again
	if err := NewSyncFeedConfigTask(cfg.Name, cfg, s.feeds, channels).Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("Expected a single head fetch, got %d", fetcher.calls)
	}
}

func TestSyncFeedConfigTaskURLChangeResetsCursor(t *testing.T) {
	s := setupStore(t)
	cfg := testFeedConfig("night-radio")
	cfg.Settings.StartOffset = 1800
	registerFeed(t, s, cfg)

	if err := newIngestTask(cfg, &docFetcher{data: loadSample(t)}, s).Execute(context.Background()); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if getFeed(t, s, "night-radio").NextStart == 1800 {
		t.Fatal("Expected cursor to advance")
	}

	moved := *cfg
	moved.URL = "http://cdn.fm/moved.xml"
	fetcher := &docFetcher{data: loadSample(t)}
	if err := NewSyncFeedConfigTask(moved.Name, &moved, s.feeds, feed.NewChannelReader(fetcher, 4096)).Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	f := getFeed(t, s, "night-radio")
	if f.FeedURL != "http://cdn.fm/moved.xml" {
		t.Errorf("Expected new URL, got %s", f.FeedURL)
	}
	if f.NextStart != 1800 {
		t.Errorf("Expected cursor reset to 1800, got %d", f.NextStart)
	}
	if fetcher.calls != 1 {
		t.Errorf("Expected URL change to trigger a head fetch, got %d fetches", fetcher.calls)
	}
}

func TestSyncFeedConfigTaskChannelReadFailureIsNotFatal(t *testing.T) {
	s := setupStore(t)
	cfg := testFeedConfig("night-radio")
	channels := feed.NewChannelReader(&docFetcher{data: []byte("not a feed at all")}, 4096)

	if err := NewSyncFeedConfigTask(cfg.Name, cfg, s.feeds, channels).Execute(context.Background()); err != nil {
		t.Fatalf("Expected channel read failure to be logged only, got %v", err)
	}

	if f := getFeed(t, s, "night-radio"); f.Title != "" {
		t.Errorf("Expected empty title, got %q", f.Title)
	}
}
