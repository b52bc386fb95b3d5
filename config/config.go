// Package config loads the TOML settings file. A missing file yields
// defaults; a malformed file is an error so typos never silently fall back.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

type Recording struct {
	SampleRate         int    `toml:"sample_rate"`
	MaxDurationSeconds int    `toml:"max_duration_seconds"`
	MinDurationMs      int    `toml:"min_duration_ms"`
	Device             string `toml:"device"`
}

type Transcription struct {
	Workers        int    `toml:"workers"`
	QueueDepth     int    `toml:"queue_depth"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Language       string `toml:"language"`
}

type Storage struct {
	NotesDir   string `toml:"notes_dir"`
	ArchiveDir string `toml:"archive_dir"`
}

type Paste struct {
	RestoreClipboard bool `toml:"restore_clipboard"`
}

type Sound struct {
	Enabled bool `toml:"enabled"`
}

type Config struct {
	Recording     Recording     `toml:"recording"`
	Transcription Transcription `toml:"transcription"`
	Storage       Storage       `toml:"storage"`
	Paste         Paste         `toml:"paste"`
	Sound         Sound         `toml:"sound"`
}

func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Recording: Recording{
			SampleRate:         16000,
			MaxDurationSeconds: 120,
			MinDurationMs:      500,
		},
		Transcription: Transcription{
			Workers:        2,
			QueueDepth:     8,
			TimeoutSeconds: 60,
		},
		Storage: Storage{
			NotesDir:   filepath.Join(home, "Documents", "murmur"),
			ArchiveDir: filepath.Join(home, "Documents", "murmur", "archive"),
		},
		Paste: Paste{RestoreClipboard: true},
		Sound: Sound{Enabled: true},
	}
}

// DefaultPath is where Load looks when no -config flag is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "murmur", "config.toml")
}

func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// normalize clamps out-of-range values back to sane defaults.
func (c *Config) normalize() {
	def := Default()
	if c.Recording.SampleRate <= 0 {
		c.Recording.SampleRate = def.Recording.SampleRate
	}
	if c.Recording.MaxDurationSeconds <= 0 {
		c.Recording.MaxDurationSeconds = def.Recording.MaxDurationSeconds
	}
	if c.Recording.MinDurationMs < 0 {
		c.Recording.MinDurationMs = def.Recording.MinDurationMs
	}
	if c.Transcription.Workers < 1 {
		c.Transcription.Workers = def.Transcription.Workers
	}
	if c.Transcription.QueueDepth < 1 {
		c.Transcription.QueueDepth = def.Transcription.QueueDepth
	}
	if c.Transcription.TimeoutSeconds <= 0 {
		c.Transcription.TimeoutSeconds = def.Transcription.TimeoutSeconds
	}
	if c.Storage.NotesDir == "" {
		c.Storage.NotesDir = def.Storage.NotesDir
	}
	if c.Storage.ArchiveDir == "" {
		c.Storage.ArchiveDir = def.Storage.ArchiveDir
	}
}

func (c Config) MaxDuration() time.Duration {
	return time.Duration(c.Recording.MaxDurationSeconds) * time.Second
}

func (c Config) MinDuration() time.Duration {
	return time.Duration(c.Recording.MinDurationMs) * time.Millisecond
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.Transcription.TimeoutSeconds) * time.Second
}
