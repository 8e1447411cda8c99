// Package config holds the settings shared by the CLI modes. Values come from
// defaults, then an optional yaml file, then SCENE2VIDEO_* environment variables;
// command line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "SCENE2VIDEO_"

type Config struct {
	LogLevel  string `yaml:"logLevel"`
	ShowStats bool   `yaml:"showStats"`

	Timeline TimelineConfig `yaml:"timeline"`
	TTS      TTSConfig      `yaml:"tts"`
	Cache    CacheConfig    `yaml:"cache"`
	Import   ImportConfig   `yaml:"import"`
	Preview  PreviewConfig  `yaml:"preview"`
}

// TimelineConfig locates timelines and sets the defaults of new ones
type TimelineConfig struct {
	Dir    string `yaml:"dir"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
}

type TTSConfig struct {
	Command      string  `yaml:"command"`
	Voice        string  `yaml:"voice"`
	TempDir      string  `yaml:"tempDir"`
	Workers      int     `yaml:"workers"` // 0 picks a value from the CPU count
	MaxAttempts  int     `yaml:"maxAttempts"`
	InitialDelay float64 `yaml:"initialDelay"` // seconds
}

type CacheConfig struct {
	Path     string `yaml:"path"` // empty keeps the cache in memory
	Disabled bool   `yaml:"disabled"`
}

type ImportConfig struct {
	DPI          int     `yaml:"dpi"`
	Detector     string  `yaml:"detector"`
	PageDuration float64 `yaml:"pageDuration"`
	Transition   string  `yaml:"transition"`
	OutroURL     string  `yaml:"outroUrl"`
	AssetsDir    string  `yaml:"assetsDir"`
}

type PreviewConfig struct {
	FPS int `yaml:"fps"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Timeline: TimelineConfig{
			Dir:    "timelines",
			Width:  1080,
			Height: 1920,
			FPS:    30,
		},
		TTS: TTSConfig{
			Command:      "edge-tts",
			Voice:        "en-US-AriaNeural",
			MaxAttempts:  3,
			InitialDelay: 2,
		},
		Cache: CacheConfig{
			Path: "narration.db",
		},
		Import: ImportConfig{
			DPI:          150,
			Detector:     "contrast",
			PageDuration: 4,
			Transition:   "fade",
			AssetsDir:    "assets",
		},
		Preview: PreviewConfig{FPS: 30},
	}
}

// Load reads a yaml config on top of the defaults and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SCENE2VIDEO_* variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("LOG_LEVEL", &c.LogLevel)
	boolean("SHOW_STATS", &c.ShowStats)
	str("TIMELINE_DIR", &c.Timeline.Dir)
	str("TTS_COMMAND", &c.TTS.Command)
	str("TTS_VOICE", &c.TTS.Voice)
	str("TTS_TEMP_DIR", &c.TTS.TempDir)
	num("TTS_WORKERS", &c.TTS.Workers)
	str("CACHE_PATH", &c.Cache.Path)
	boolean("CACHE_DISABLED", &c.Cache.Disabled)
	num("IMPORT_DPI", &c.Import.DPI)
	str("OUTRO_URL", &c.Import.OutroURL)
	num("PREVIEW_FPS", &c.Preview.FPS)
	return errors.Join(errs...)
}

// Validate checks value ranges
func (c *Config) Validate() error {
	switch {
	case c.Timeline.Width <= 0 || c.Timeline.Height <= 0:
		return fmt.Errorf("invalid resolution %dx%d", c.Timeline.Width, c.Timeline.Height)
	case c.Timeline.FPS <= 0:
		return fmt.Errorf("invalid timeline fps %d", c.Timeline.FPS)
	case c.Preview.FPS <= 0 || c.Preview.FPS > 240:
		return fmt.Errorf("invalid preview fps %d", c.Preview.FPS)
	case c.TTS.Workers < 0:
		return fmt.Errorf("tts workers must not be negative")
	case c.TTS.MaxAttempts < 1:
		return fmt.Errorf("tts maxAttempts must be at least 1")
	case c.TTS.InitialDelay < 0:
		return fmt.Errorf("tts initialDelay must not be negative")
	case c.Import.DPI <= 0:
		return fmt.Errorf("invalid import dpi %d", c.Import.DPI)
	case c.Import.PageDuration <= 0:
		return fmt.Errorf("import pageDuration must be positive")
	}
	return nil
}
