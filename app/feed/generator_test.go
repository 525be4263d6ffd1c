package feed

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/pod-comb/app/cfg"
	"github.com/lysyi3m/pod-comb/app/database"
	"github.com/lysyi3m/pod-comb/app/episode"
	"github.com/lysyi3m/pod-comb/app/parser"
)

func setupTestConfig() {
	// Clear os.Args to prevent config parsing from failing
	oldArgs := os.Args
	os.Args = []string{"test"}
	defer func() { os.Args = oldArgs }()

	// Set default environment variables if not set
	if os.Getenv("PORT") == "" {
		os.Setenv("PORT", "8080")
	}

	cfg.Load()
}

func sampleFeed() database.Feed {
	return database.Feed{
		ID:       "test-feed-uuid",
		Name:     "night-radio",
		Title:    "Night Radio 夜话",
		Link:     "http://cdn.fm/show",
		FeedURL:  "http://cdn.fm/feed.xml",
		ImageURL: "http://cdn.fm/cover.jpg",
		Language: "zh-cn",
	}
}

func sampleEpisodes() []database.Episode {
	return []database.Episode{
		{
			ID: "ep-2",
			Episode: episode.Episode{
				Key:         "key-2",
				GUID:        "night-radio-2",
				Title:       "Episode Number 02",
				Subtitle:    "第2期 & friends",
				Description: "Second <episode>",
				Timestamp:   1586174400,
				URL:         "http://cdn.fm/e2",
				Image:       "http://cdn.fm/e2.jpg",
				Link:        "http://cdn.fm/show/2",
				Duration:    "00:42:00",
				MediaType:   "audio/mpeg",
				MediaLength: 1000002,
			},
			ShowNotes: "<p>Notes with ]]> inside</p>",
		},
		{
			ID: "ep-1",
			Episode: episode.Episode{
				Key:       "key-1",
				Title:     "Episode Number 01",
				Timestamp: 1586088000,
				URL:       "http://cdn.fm/e1",
			},
		},
	}
}

func TestGeneratePodcastRSS(t *testing.T) {
	setupTestConfig()
	generator := NewGenerator()

	rss, err := generator.Run(sampleFeed(), sampleEpisodes())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd"`,
		`<title>Night Radio 夜话</title>`,
		`<atom:link href="http://localhost:8080/feeds/night-radio" rel="self" type="application/rss+xml" />`,
		`<itunes:image href="http://cdn.fm/cover.jpg" />`,
		`<language>zh-cn</language>`,
		`<guid isPermaLink="false">night-radio-2</guid>`,
		`<guid isPermaLink="false">key-1</guid>`,
		`<itunes:subtitle>第2期 &amp; friends</itunes:subtitle>`,
		`<description>Second &lt;episode&gt;</description>`,
		`<enclosure url="http://cdn.fm/e2" length="1000002" type="audio/mpeg" />`,
		`<enclosure url="http://cdn.fm/e1" length="0" type="audio/mpeg" />`,
		`<itunes:duration>00:42:00</itunes:duration>`,
		`<itunes:image href="http://cdn.fm/e2.jpg" />`,
		`<content:encoded><![CDATA[<p>Notes with ]]]]><![CDATA[> inside</p>]]></content:encoded>`,
		`<description>No description available</description>`,
	}
	for _, s := range expected {
		if !strings.Contains(rss, s) {
			t.Errorf("RSS should contain %s", s)
		}
	}

	pubDate := time.Unix(1586174400, 0).In(time.Local).Format(time.RFC1123Z)
	if !strings.Contains(rss, "<pubDate>"+pubDate+"</pubDate>") {
		t.Errorf("RSS should contain pubDate %s", pubDate)
	}
	if !strings.Contains(rss, "<lastBuildDate>"+pubDate+"</lastBuildDate>") {
		t.Error("lastBuildDate should come from the newest episode")
	}
}

func TestGeneratedRSSParsesBack(t *testing.T) {
	setupTestConfig()

	rss, err := NewGenerator().Run(sampleFeed(), sampleEpisodes())
	if err != nil {
		t.Fatal(err)
	}

	res, err := parser.NewParser().Run(strings.NewReader(rss))
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(res.Items))
	}
	if string(res.Items[0].Subtitle) != "第2期 & friends" {
		t.Errorf("Expected subtitle to survive, got %q", res.Items[0].Subtitle)
	}
	if string(res.Items[1].EnclosureURL) != "http://cdn.fm/e1" {
		t.Errorf("Expected enclosure to survive, got %q", res.Items[1].EnclosureURL)
	}
	if res.Anomalies != 0 {
		t.Errorf("Expected well-formed output, got %d anomalies", res.Anomalies)
	}
}

func TestGenerateWithMinimalData(t *testing.T) {
	setupTestConfig()

	feed := database.Feed{Name: "bare", FeedURL: "http://cdn.fm/bare.xml"}
	rss, err := NewGenerator().Run(feed, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(rss, "<title>bare</title>") {
		t.Error("Title should fall back to the feed name")
	}
	if !strings.Contains(rss, "<description>Processed feed from http://cdn.fm/bare.xml</description>") {
		t.Error("Description should fall back to the source URL")
	}
	if strings.Contains(rss, "<item>") || strings.Contains(rss, "<image>") {
		t.Error("Empty feed should have no items and no image")
	}
}

func TestIsURLMethod(t *testing.T) {
	generator := NewGenerator()

	tests := []struct {
		input    string
		expected bool
	}{
		{"http://example.com", true},
		{"https://example.com", true},
		{"night-radio-1", false},
		{"http://", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := generator.isURL(tt.input); got != tt.expected {
			t.Errorf("isURL(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}
