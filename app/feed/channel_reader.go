package feed

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/pod-comb/app/fetch"
)

// ChannelReader reads channel metadata from the head of a feed without
// downloading its items.
type ChannelReader struct {
	fetcher      fetch.RangeFetcher
	gofeedParser *gofeed.Parser
	size         int64
}

func NewChannelReader(fetcher fetch.RangeFetcher, size int64) *ChannelReader {
	return &ChannelReader{
		fetcher:      fetcher,
		gofeedParser: gofeed.NewParser(),
		size:         size,
	}
}

func (cr *ChannelReader) Run(ctx context.Context, url string) (*Metadata, error) {
	body, err := cr.fetcher.Fetch(ctx, url, fetch.ByteRange{Start: 0, End: cr.size - 1})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed head: %w", err)
	}
	defer body.Close()

	// servers ignoring Range would send the whole document
	data, err := io.ReadAll(io.LimitReader(body, cr.size))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed head: %w", err)
	}

	return cr.Parse(data)
}

// Parse extracts channel metadata from the first bytes of a feed.
func (cr *ChannelReader) Parse(head []byte) (*Metadata, error) {
	feed, err := cr.gofeedParser.Parse(bytes.NewReader(channelHead(head)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse channel: %w", err)
	}

	metadata := &Metadata{
		Title:       strings.TrimSpace(feed.Title),
		Link:        feed.Link,
		Description: strings.TrimSpace(feed.Description),
		Language:    feed.Language,
	}

	if feed.Image != nil {
		metadata.ImageURL = feed.Image.URL
	}
	if feed.ITunesExt != nil {
		metadata.ImageURL = cmp.Or(metadata.ImageURL, feed.ITunesExt.Image)
	}

	return metadata, nil
}

// channelHead cuts data before the first item and closes the channel so
// the head parses as a complete document with no items.
func channelHead(data []byte) []byte {
	if i := firstItem(data); i >= 0 {
		data = data[:i]
	} else if bytes.Contains(data, []byte("</rss>")) {
		return data
	}

	head := make([]byte, 0, len(data)+len("</channel></rss>"))
	head = append(head, data...)
	return append(head, "</channel></rss>"...)
}

func firstItem(data []byte) int {
	open := []byte("<item")
	from := 0
	for {
		i := bytes.Index(data[from:], open)
		if i < 0 {
			return -1
		}
		at := from + i
		next := at + len(open)
		if next < len(data) {
			switch data[next] {
			case '>', ' ', '\t', '\r', '\n':
				return at
			}
		}
		from = next
	}
}
