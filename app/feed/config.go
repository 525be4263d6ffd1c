package feed

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/pod-comb/app/episode"
)

var ErrInvalidConfig = errors.New("invalid feed config")

// ParseConfig decodes the YAML of feed name, completes unset settings
// from defaults and validates the window it describes.
func ParseConfig(name string, data []byte, defaults WindowDefaults) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	c.Name = name
	c.Settings.complete(defaults)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// complete fills zero settings. The default segment is clamped to the
// window so a small window_size alone stays valid.
func (s *ConfigSettings) complete(d WindowDefaults) {
	s.RefreshInterval = cmp.Or(s.RefreshInterval, DefaultRefreshInterval)
	s.MaxItems = cmp.Or(s.MaxItems, DefaultMaxItems)
	s.Timeout = cmp.Or(s.Timeout, d.Timeout, DefaultTimeout)
	s.WindowSize = cmp.Or(s.WindowSize, d.WindowSize, DefaultWindowSize)
	if s.SegmentSize == 0 {
		s.SegmentSize = min(cmp.Or(d.SegmentSize, DefaultSegmentSize), s.WindowSize)
	}
	s.MinBytes = cmp.Or(s.MinBytes, d.MinBytes, DefaultMinBytes)
}

// Validate rejects configs a window run cannot be started with.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}

	s := c.Settings
	checks := []struct {
		failed bool
		reason string
	}{
		{c.Name == "", "feed name is required"},
		{c.URL == "", "feed URL is required"},
		{s.RefreshInterval < 0, "refresh interval must be non-negative"},
		{s.MaxItems < 0, "max items must be non-negative"},
		{s.Timeout < 0, "timeout must be non-negative"},
		{s.StartOffset < 0, "start offset must be non-negative"},
		{s.SegmentSize < 1, "segment size must be positive"},
		{s.MinBytes < 1, "min bytes must be positive"},
		{s.WindowSize < s.SegmentSize, "window size must not be smaller than segment size"},
		{s.MaxSegmentSize < 0, "max segment size must be non-negative"},
		{s.MaxSegmentSize > 0 && s.MaxSegmentSize < s.SegmentSize, "max segment size must not be smaller than segment size"},
	}
	for _, check := range checks {
		if check.failed {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, check.reason)
		}
	}

	if _, err := episode.ParseDescriptionFormat(s.DescriptionFormat); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	for i, filter := range c.Filters {
		if !slices.Contains(FilterFields, filter.Field) {
			return fmt.Errorf("%w: filter %d matches unknown field %q", ErrInvalidConfig, i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("%w: filter %d has no include or exclude rule", ErrInvalidConfig, i)
		}
	}

	return nil
}
