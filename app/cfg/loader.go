package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath string `long:"db-path" env:"DB_PATH" default:"./pod-comb.db" description:"SQLite database file"`

	// Application configuration
	FeedsDir          string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing feed configuration files"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://feeds.example.com)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for feed processing"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"30" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Window defaults
	WindowSize  int64 `long:"window-size" env:"WINDOW_SIZE" default:"1048576" description:"Bytes of a feed covered by one ingest run"`
	SegmentSize int64 `long:"segment-size" env:"SEGMENT_SIZE" default:"262144" description:"Bytes requested per range request"`
	MinBytes    int64 `long:"min-bytes" env:"MIN_BYTES" default:"256" description:"Minimum bytes a segment must commit to count as progress"`
	HeadSize    int64 `long:"head-size" env:"HEAD_SIZE" default:"65536" description:"Bytes fetched from the head of a feed to read channel metadata"`
	HTTPTimeout int   `long:"http-timeout" env:"HTTP_TIMEOUT" default:"30" description:"Default HTTP timeout in seconds"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Pod Comb/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps and date keys (e.g., UTC, Asia/Shanghai)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		FeedsDir:          raw.FeedsDir,
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		WindowSize:        raw.WindowSize,
		SegmentSize:       raw.SegmentSize,
		MinBytes:          raw.MinBytes,
		HeadSize:          raw.HeadSize,
		HTTPTimeout:       raw.HTTPTimeout,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Validate checks the window defaults the way per-feed settings are
// checked, so a bad default fails at startup instead of on first ingest.
func (c *Cfg) Validate() error {
	switch {
	case c.SegmentSize < 1:
		return fmt.Errorf("segment size must be positive")
	case c.MinBytes < 1:
		return fmt.Errorf("min bytes must be positive")
	case c.WindowSize < c.SegmentSize:
		return fmt.Errorf("window size must not be smaller than segment size")
	case c.HeadSize < 1:
		return fmt.Errorf("head size must be positive")
	case c.WorkerCount < 1:
		return fmt.Errorf("worker count must be positive")
	}
	return nil
}

// Location is the configured timezone, UTC when it cannot be loaded.
func (c *Cfg) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
