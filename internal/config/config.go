// Package config loads the engine's own operating parameters: where
// session scratch files live, the byte-source ring buffer sizing, the
// producer's backpressure queue depth, and the search engine's cache
// sizes. This is deliberately a flat TOML document — separate from the
// KDL-described source descriptors in internal/sourcedesc, which are
// per-Observe-call declarations rather than process-wide settings.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/loglens/obscore/internal/errkind"
)

// Config is the engine's process-wide configuration.
type Config struct {
	Scratch      Scratch      `toml:"scratch"`
	Source       Source       `toml:"source"`
	Backpressure Backpressure `toml:"backpressure"`
	Search       Search       `toml:"search"`
	Debug        bool         `toml:"debug"`
}

// Scratch configures where session files (spec §6: {uuid}.session,
// {uuid}.bin, {uuid}.search) are written.
type Scratch struct {
	Dir string `toml:"dir"`
}

// Source configures the ByteSource ring buffer and default reconnect
// policy (spec §4.1).
type Source struct {
	RingBufferCapacity int       `toml:"ring_buffer_capacity"` // bytes; load() returns early near this capacity
	MaxChunkSize       int       `toml:"max_chunk_size"`       // loaded but not read by any source
	Reconnect          Reconnect `toml:"reconnect"`
}

// Reconnect is the default reconnect policy for network sources, applied
// by Session.Observe to each field a source descriptor leaves unset (spec
// §4.1).
type Reconnect struct {
	MaxAttempts int `toml:"max_attempts"`
	IntervalMs  int `toml:"interval_ms"`
}

// Backpressure configures the producer→writer bounded channel (spec §5).
type Backpressure struct {
	QueueDepth int `toml:"queue_depth"`
}

// Search configures the default overview bucket count (spec §4.7).
// CompiledCacheSize is loaded but not read: the search engine keeps no
// compile cache and compiles the filters anew on every run.
type Search struct {
	CompiledCacheSize int `toml:"compiled_cache_size"`
	DefaultDatasetLen int `toml:"default_dataset_len"`
}

// Default returns the engine's built-in defaults, used when no config
// file is present — every field here has a concrete, sane value so a
// zero-config Session still works.
func Default() *Config {
	return &Config{
		Scratch: Scratch{Dir: os.TempDir()},
		Source: Source{
			RingBufferCapacity: 8 * 1024 * 1024,
			MaxChunkSize:       4 * 1024 * 1024,
			Reconnect: Reconnect{
				MaxAttempts: 5,
				IntervalMs:  500,
			},
		},
		Backpressure: Backpressure{QueueDepth: 256},
		Search: Search{
			CompiledCacheSize: 128,
			DefaultDatasetLen: 512,
		},
		Debug: false,
	}
}

// Load reads a TOML config file at path, applying it on top of Default()
// so a partial file only overrides the fields it mentions. A missing file
// is not an error — it's the zero-config path.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errkind.Configuration("config.Load", fmt.Errorf("read %s: %w", path, err))
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errkind.Configuration("config.Load", fmt.Errorf("parse %s: %w", path, err))
	}
	return cfg, nil
}
