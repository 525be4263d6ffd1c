package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/lysyi3m/pod-comb/app/fetch"
	"github.com/lysyi3m/pod-comb/app/parser"
)

// ErrNoProgress means a segment committed fewer bytes than the
// configured minimum: the source is exhausted or ignores Range.
var ErrNoProgress = errors.New("segment size not large enough")

var ErrInvalidOptions = errors.New("invalid window options")

type Options struct {
	// SegmentSize is the span of each range request.
	SegmentSize int64
	// MinBytes is the least a segment must commit to count as progress.
	MinBytes int64
}

func (o Options) Validate() error {
	if o.SegmentSize < 1 {
		return fmt.Errorf("%w: segment size must be positive, got %d", ErrInvalidOptions, o.SegmentSize)
	}
	if o.MinBytes < 1 {
		return fmt.Errorf("%w: min bytes must be positive, got %d", ErrInvalidOptions, o.MinBytes)
	}
	return nil
}

type Result struct {
	Items []parser.RawItem

	// NextStart is the committed offset to persist and pass as the start
	// of the next window.
	NextStart int64

	Fetches   int
	BytesRead int64
	Anomalies int

	// EOF is set when the last segment came back shorter than requested,
	// i.e. the document ended inside it.
	EOF bool
}

// Controller drives range fetches over a window and stitches the
// per-segment parses into one ordered item list. It holds no state
// between runs.
type Controller struct {
	fetcher fetch.RangeFetcher
	parser  *parser.Parser
	opts    Options
}

func NewController(fetcher fetch.RangeFetcher, p *parser.Parser, opts Options) (*Controller, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if p == nil {
		p = parser.NewParser()
	}
	return &Controller{
		fetcher: fetcher,
		parser:  p,
		opts:    opts,
	}, nil
}

// RunWindow is Run over [start, start+size].
func (c *Controller) RunWindow(ctx context.Context, url string, start, size int64) (*Result, error) {
	return c.Run(ctx, url, fetch.ByteRange{Start: start, End: start + size})
}

// Run fetches segments starting at target.Start, each one shifted by the
// bytes the previous one committed, until a fetched segment reaches
// target.End. The last segment may extend past target.End so the item in
// progress there can close; items closing after that one are dropped and
// NextStart is set right after it.
//
// A segment that commits nothing while returning at least MinBytes holds
// part of an item larger than the segment; the run stops there without
// error and NextStart stays where it was. Any other segment committing
// less than MinBytes fails with ErrNoProgress.
//
// On error the result still carries everything committed before the
// failure.
func (c *Controller) Run(ctx context.Context, url string, target fetch.ByteRange) (*Result, error) {
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	res := &Result{NextStart: target.Start}
	segment := fetch.ByteRange{Start: target.Start, End: target.Start + c.opts.SegmentSize}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		parsed, err := c.runSegment(ctx, url, segment)
		res.Fetches++
		if parsed != nil {
			for _, item := range parsed.Items {
				item.End += segment.Start
				res.Items = append(res.Items, item)
			}
			res.BytesRead += parsed.StreamEnd
			res.Anomalies += parsed.Anomalies
			res.EOF = parsed.StreamEnd < segment.Len()
			res.NextStart = segment.Start + parsed.CommittedEnd
		}
		if err != nil {
			return res, err
		}

		consumed := parsed.CommittedEnd
		slog.Debug("Segment parsed",
			"url", url,
			"range", segment.Header(),
			"items", len(parsed.Items),
			"committed", humanize.Bytes(uint64(consumed)),
			"read", humanize.Bytes(uint64(parsed.StreamEnd)))

		if consumed == 0 && parsed.StreamEnd >= c.opts.MinBytes && !res.EOF {
			slog.Debug("Segment holds no complete item", "url", url, "range", segment.Header())
			break
		}
		if consumed < c.opts.MinBytes {
			return res, fmt.Errorf("%s at offset %d: %w", url, segment.Start, ErrNoProgress)
		}

		covered := segment.End >= target.End
		segment.Start += consumed
		segment.End += consumed

		if covered {
			break
		}
	}

	trimPastEnd(res, target.End)
	return res, nil
}

// trimPastEnd drops items that the last segment closed after the one in
// progress at end. That item is kept, so the window stays complete.
func trimPastEnd(res *Result, end int64) {
	for i, item := range res.Items {
		if item.End <= end {
			continue
		}
		if keep := i + 1; keep < len(res.Items) {
			res.Items = res.Items[:keep]
			res.NextStart = res.Items[i].End
			res.EOF = false
		}
		return
	}
}

func (c *Controller) runSegment(ctx context.Context, url string, r fetch.ByteRange) (*parser.Result, error) {
	body, err := c.fetcher.Fetch(ctx, url, r)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", r.Header(), err)
	}
	defer body.Close()

	parsed, err := c.parser.Run(body)
	if err != nil {
		return parsed, fmt.Errorf("failed to parse %s: %w", r.Header(), err)
	}
	return parsed, nil
}
