package feed

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

const configExt = ".yml"

// ConfigCache keeps the feed configs found in feedsDir, one
// <name>.yml per feed, with window settings completed from the process
// defaults.
type ConfigCache struct {
	feedsDir string
	defaults WindowDefaults

	mu      sync.RWMutex
	configs map[string]*Config
}

func NewConfigCache(feedsDir string, defaults WindowDefaults) *ConfigCache {
	return &ConfigCache{
		feedsDir: feedsDir,
		defaults: defaults,
		configs:  make(map[string]*Config),
	}
}

// Run loads every feed file. A missing directory holds no feeds.
func (cc *ConfigCache) Run() error {
	names, err := cc.feedNames()
	if err != nil {
		return err
	}

	for _, name := range names {
		c, err := cc.LoadConfig(name)
		if err != nil {
			return fmt.Errorf("failed to load feed %s: %w", name, err)
		}

		slog.Debug("Feed config loaded",
			"feed", name,
			"enabled", c.Settings.Enabled,
			"window", humanize.IBytes(uint64(c.Settings.WindowSize)),
			"segment", humanize.IBytes(uint64(c.Settings.SegmentSize)),
			"start_offset", c.Settings.StartOffset)
	}

	return nil
}

func (cc *ConfigCache) feedNames() ([]string, error) {
	entries, err := os.ReadDir(cc.feedsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(entry.Name(), configExt); ok && name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// LoadConfig re-reads one feed file and replaces its cached config. The
// cache is left alone when the file is missing or invalid.
func (cc *ConfigCache) LoadConfig(feedName string) (*Config, error) {
	path := filepath.Join(cc.feedsDir, feedName+configExt)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	c, err := ParseConfig(feedName, data, cc.defaults)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cc.mu.Lock()
	cc.configs[feedName] = c
	cc.mu.Unlock()

	return c, nil
}

func (cc *ConfigCache) GetConfig(feedName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	c, ok := cc.configs[feedName]
	if !ok {
		return nil, fmt.Errorf("feed config with name '%s' not found", feedName)
	}
	return c, nil
}

// GetConfigs returns a copy of the cached configs keyed by feed name.
func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return maps.Clone(cc.configs)
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	enabled := cc.GetConfigs()
	maps.DeleteFunc(enabled, func(_ string, c *Config) bool {
		return !c.Settings.Enabled
	})
	return enabled
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.configs)
}
