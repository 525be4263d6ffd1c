package feed

// Channel metadata read from the head of a feed

type Metadata struct {
	Title       string
	Link        string
	Description string
	ImageURL    string
	Language    string
}

// Configuration types

type Config struct {
	Name     string         // Derived from filename (without .yml extension)
	URL      string         `yaml:"url"`
	Settings ConfigSettings `yaml:"settings"`
	Filters  []ConfigFilter `yaml:"filters"`
}

type ConfigSettings struct {
	Enabled           bool   `yaml:"enabled"`
	RefreshInterval   int    `yaml:"refresh_interval"` // seconds
	MaxItems          int    `yaml:"max_items"`
	Timeout           int    `yaml:"timeout"` // seconds
	WindowSize        int64  `yaml:"window_size"`
	SegmentSize       int64  `yaml:"segment_size"`
	MaxSegmentSize    int64  `yaml:"max_segment_size"` // growth cap when no item fits a segment
	MinBytes          int64  `yaml:"min_bytes"`
	StartOffset       int64  `yaml:"start_offset"`
	ExtractShowNotes  bool   `yaml:"extract_show_notes"`
	DescriptionFormat string `yaml:"description_format"` // text, html or markdown
}

type ConfigFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// WindowDefaults fill window settings a feed config leaves out.
type WindowDefaults struct {
	WindowSize  int64
	SegmentSize int64
	MinBytes    int64
	Timeout     int
}

const (
	DefaultWindowSize      = 1 << 20
	DefaultSegmentSize     = 256 << 10
	DefaultMaxSegmentSize  = 4 << 20
	DefaultMinBytes        = 256
	DefaultRefreshInterval = 3600
	DefaultMaxItems        = 100
	DefaultTimeout         = 30
)

// SegmentLimit is the largest segment an ingest run may grow to when a
// single episode does not fit the configured segment.
func (s ConfigSettings) SegmentLimit() int64 {
	if s.MaxSegmentSize > 0 {
		return max(s.MaxSegmentSize, s.SegmentSize)
	}
	return max(s.WindowSize, s.SegmentSize, DefaultMaxSegmentSize)
}
