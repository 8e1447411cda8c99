package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("SCENE2VIDEO_TTS_VOICE", "")
	os.Unsetenv("SCENE2VIDEO_TTS_VOICE")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Missing file should fall back to defaults: %v", err)
	}
	if cfg.TTS.Voice != Default().TTS.Voice || cfg.Timeline.FPS != 30 {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults must validate: %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene2video.yaml")
	data := []byte("logLevel: debug\ntts:\n  voice: ru-RU-SvetlanaNeural\n  workers: 4\npreview:\n  fps: 24\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCENE2VIDEO_PREVIEW_FPS", "60")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" || cfg.TTS.Voice != "ru-RU-SvetlanaNeural" || cfg.TTS.Workers != 4 {
		t.Errorf("File values not applied: %+v", cfg)
	}
	if cfg.Preview.FPS != 60 {
		t.Errorf("Env should override the file, got fps %d", cfg.Preview.FPS)
	}
	// Untouched sections keep their defaults
	if cfg.Import.DPI != 150 {
		t.Errorf("Expected default dpi, got %d", cfg.Import.DPI)
	}
}

func TestApplyEnvErrors(t *testing.T) {
	env := map[string]string{
		"SCENE2VIDEO_TTS_WORKERS":    "many",
		"SCENE2VIDEO_CACHE_DISABLED": "true",
	}
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err == nil {
		t.Error("Expected an error for a non-numeric worker count")
	}
	if !cfg.Cache.Disabled {
		t.Error("Valid overrides should still apply")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"resolution", func(c *Config) { c.Timeline.Width = 0 }},
		{"preview fps", func(c *Config) { c.Preview.FPS = 0 }},
		{"workers", func(c *Config) { c.TTS.Workers = -1 }},
		{"attempts", func(c *Config) { c.TTS.MaxAttempts = 0 }},
		{"page duration", func(c *Config) { c.Import.PageDuration = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected a validation error")
			}
		})
	}
}
