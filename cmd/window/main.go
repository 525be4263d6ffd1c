// Command window parses one byte window of a podcast feed and prints the
// episodes found there together with the offset the next window starts at.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"

	"github.com/lysyi3m/pod-comb/app/episode"
	"github.com/lysyi3m/pod-comb/app/fetch"
	"github.com/lysyi3m/pod-comb/app/parser"
	"github.com/lysyi3m/pod-comb/app/window"
)

type options struct {
	Start       int64  `long:"start" default:"0" description:"Byte offset the window starts at"`
	End         int64  `long:"end" description:"Last byte of the window, overrides --window-size"`
	WindowSize  int64  `long:"window-size" env:"WINDOW_SIZE" default:"1048576" description:"Bytes covered by the window"`
	SegmentSize int64  `long:"segment-size" env:"SEGMENT_SIZE" default:"262144" description:"Bytes requested per range request"`
	MinBytes    int64  `long:"min-bytes" env:"MIN_BYTES" default:"256" description:"Minimum bytes a segment must commit"`
	MaxField    int    `long:"max-field-size" default:"1048576" description:"Bytes kept per episode field, the rest is cut"`
	Format      string `long:"format" default:"text" choice:"text" choice:"html" choice:"markdown" description:"Description format"`
	Timezone    string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for date keys"`
	Timeout     int    `long:"timeout" default:"30" description:"HTTP timeout in seconds"`
	UserAgent   string `long:"user-agent" env:"USER_AGENT" default:"Pod Comb/1.0" description:"User agent for range requests"`
	JSON        bool   `long:"json" description:"Print the result as JSON"`
	Debug       bool   `long:"debug" description:"Log every segment"`

	Args struct {
		URL string `positional-arg-name:"feed-url" required:"yes"`
	} `positional-args:"yes"`
}

type output struct {
	NextStart int64             `json:"next_start"`
	Count     int               `json:"count"`
	Fetches   int               `json:"fetches"`
	BytesRead int64             `json:"bytes_read"`
	EOF       bool              `json:"eof"`
	Episodes  []episode.Episode `json:"episodes"`
	Error     string            `json:"error,omitempty"`
}

func main() {
	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	level := slog.LevelWarn
	if opts.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := &http.Client{Timeout: time.Duration(opts.Timeout) * time.Second}
	if err := run(ctx, opts, fetch.NewHTTPFetcher(client, opts.UserAgent), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run parses the window and writes the result to w. A window that fails
// part way still prints what it committed before returning the error.
func run(ctx context.Context, opts options, fetcher fetch.RangeFetcher, w io.Writer) error {
	format, err := episode.ParseDescriptionFormat(opts.Format)
	if err != nil {
		return err
	}

	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", opts.Timezone, err)
	}

	controller, err := window.NewController(fetcher, parser.NewParser().WithMaxFieldSize(opts.MaxField), window.Options{
		SegmentSize: opts.SegmentSize,
		MinBytes:    opts.MinBytes,
	})
	if err != nil {
		return err
	}

	target := fetch.ByteRange{Start: opts.Start, End: opts.End}
	if opts.End == 0 {
		target.End = opts.Start + opts.WindowSize
	}

	res, runErr := controller.Run(ctx, opts.Args.URL, target)
	if res == nil {
		return runErr
	}

	normalizer := episode.NewNormalizer(episode.NewDateParser(loc), episode.Options{
		Format:   format,
		Location: loc,
	})

	out := output{
		NextStart: res.NextStart,
		Fetches:   res.Fetches,
		BytesRead: res.BytesRead,
		EOF:       res.EOF,
		Episodes:  normalizer.Run(res.Items),
	}
	out.Count = len(out.Episodes)
	if runErr != nil {
		out.Error = runErr.Error()
	}

	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to write JSON: %w", err)
		}
		return runErr
	}

	fmt.Fprintln(w, renderEpisodes(out.Episodes, shouldStyle(w)))
	fmt.Fprintf(w, "next start: %d (%d episodes, %d fetches, %s read)\n",
		out.NextStart, out.Count, out.Fetches, humanize.Bytes(uint64(out.BytesRead)))

	return runErr
}
