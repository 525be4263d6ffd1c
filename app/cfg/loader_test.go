package cfg

import (
	"os"
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	// Test default version
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}

	version := GetVersion()
	if version != "dev" && version != "unknown" {
		// This is fine, version could be set at build time
		t.Logf("Version: %s", version)
	}
}

func TestLoadDefaults(t *testing.T) {
	oldArgs := os.Args
	os.Args = []string{"test"}
	defer func() { os.Args = oldArgs }()

	for _, key := range []string{"DB_PATH", "WINDOW_SIZE", "SEGMENT_SIZE", "MIN_BYTES", "HEAD_SIZE", "WORKER_COUNT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.DBPath != "./pod-comb.db" {
		t.Errorf("Expected default DB path, got '%s'", cfg.DBPath)
	}
	if cfg.WindowSize != 1048576 {
		t.Errorf("Expected window size 1048576, got %d", cfg.WindowSize)
	}
	if cfg.SegmentSize != 262144 {
		t.Errorf("Expected segment size 262144, got %d", cfg.SegmentSize)
	}
	if cfg.MinBytes != 256 {
		t.Errorf("Expected min bytes 256, got %d", cfg.MinBytes)
	}
	if Get() != cfg {
		t.Error("Expected Get to return the loaded configuration")
	}
}

func TestLoadFromEnv(t *testing.T) {
	oldArgs := os.Args
	os.Args = []string{"test"}
	defer func() { os.Args = oldArgs }()

	t.Setenv("WINDOW_SIZE", "8192")
	t.Setenv("SEGMENT_SIZE", "4096")
	t.Setenv("MIN_BYTES", "64")
	t.Setenv("API_ACCESS_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.WindowSize != 8192 || cfg.SegmentSize != 4096 || cfg.MinBytes != 64 {
		t.Errorf("Unexpected window settings: %d/%d/%d", cfg.WindowSize, cfg.SegmentSize, cfg.MinBytes)
	}
	if cfg.APIAccessKey != "test-key" {
		t.Errorf("Expected API key 'test-key', got '%s'", cfg.APIAccessKey)
	}
}

func TestValidate(t *testing.T) {
	valid := Cfg{WindowSize: 1024, SegmentSize: 512, MinBytes: 1, HeadSize: 1, WorkerCount: 1}

	tests := []struct {
		name    string
		mutate  func(c *Cfg)
		wantErr bool
	}{
		{"valid", func(c *Cfg) {}, false},
		{"zero segment", func(c *Cfg) { c.SegmentSize = 0 }, true},
		{"zero min bytes", func(c *Cfg) { c.MinBytes = 0 }, true},
		{"window smaller than segment", func(c *Cfg) { c.WindowSize = 100 }, true},
		{"zero head size", func(c *Cfg) { c.HeadSize = 0 }, true},
		{"no workers", func(c *Cfg) { c.WorkerCount = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	c := &Cfg{Timezone: "Not/AZone"}
	if c.Location() != time.UTC {
		t.Error("Expected UTC for an unknown timezone")
	}

	c.Timezone = "UTC"
	if c.Location().String() != "UTC" {
		t.Errorf("Expected UTC, got %s", c.Location())
	}
}
