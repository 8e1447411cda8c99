package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ivlev/scene2video/internal/logger"
	"github.com/ivlev/scene2video/internal/narration"
	"github.com/ivlev/scene2video/internal/system"
)

// DefaultCommand is the synthesis CLI used when none is configured
const DefaultCommand = "edge-tts"

// CommandSynthesizer synthesizes speech by running an edge-tts compatible
// command: `<cmd> --voice V --file TEXT --write-media OUT`.
type CommandSynthesizer struct {
	Command string
	TempDir string
	Retry   RetryConfig
	// Measure returns the length of a rendered audio file
	Measure func(ctx context.Context, path string) (float64, error)
	Log     *logger.Logger
}

// NewCommandSynthesizer returns a synthesizer measuring audio with ffprobe
func NewCommandSynthesizer(command, tempDir string, log *logger.Logger) *CommandSynthesizer {
	if command == "" {
		command = DefaultCommand
	}
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "scene2video-tts")
	}
	if log == nil {
		log = logger.Default()
	}
	return &CommandSynthesizer{
		Command: command,
		TempDir: tempDir,
		Retry:   DefaultRetryConfig(),
		Measure: system.GetAudioDuration,
		Log:     log.With("tts"),
	}
}

// CheckInstalled verifies the command can be found
func (c *CommandSynthesizer) CheckInstalled() error {
	if _, err := exec.LookPath(c.Command); err != nil {
		return fmt.Errorf("%s not installed. Install with: pip install edge-tts", c.Command)
	}
	return nil
}

// Synthesize implements narration.Synthesizer
func (c *CommandSynthesizer) Synthesize(ctx context.Context, voiceID, text string) (narration.Synthesis, error) {
	voice := strings.TrimSpace(voiceID)
	if voice == "" {
		return narration.Synthesis{}, fmt.Errorf("%w: empty voice", ErrPermanent)
	}
	if strings.TrimSpace(text) == "" {
		return narration.Synthesis{}, fmt.Errorf("%w: empty text", ErrPermanent)
	}
	if err := os.MkdirAll(c.TempDir, 0755); err != nil {
		return narration.Synthesis{}, fmt.Errorf("create temp dir: %w", err)
	}

	id := uuid.NewString()
	textPath := filepath.Join(c.TempDir, id+".txt")
	audioPath := filepath.Join(c.TempDir, id+".mp3")
	defer os.Remove(textPath)
	defer os.Remove(audioPath)

	// Text goes through a file to avoid argument escaping issues
	if err := os.WriteFile(textPath, []byte(text), 0644); err != nil {
		return narration.Synthesis{}, fmt.Errorf("write text file: %w", err)
	}

	c.Log.Debug("voice=%s chars=%d", voice, len(text))
	return Retry(ctx, c.Retry, func(attempt int) (narration.Synthesis, error) {
		if attempt > 1 {
			c.Log.Warn("retrying synthesis (attempt %d/%d)", attempt, c.Retry.MaxAttempts)
		}
		return c.attempt(ctx, voice, textPath, audioPath)
	})
}

func (c *CommandSynthesizer) attempt(ctx context.Context, voice, textPath, audioPath string) (narration.Synthesis, error) {
	cmd := exec.CommandContext(ctx, c.Command, "--voice", voice, "--file", textPath, "--write-media", audioPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return narration.Synthesis{}, ctx.Err()
		}
		return narration.Synthesis{}, fmt.Errorf("%s: %w: %s", c.Command, err, strings.TrimSpace(stderr.String()))
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return narration.Synthesis{}, fmt.Errorf("read synthesized audio: %w", err)
	}
	if len(audio) == 0 {
		return narration.Synthesis{}, fmt.Errorf("%s produced an empty file", c.Command)
	}

	duration, err := c.Measure(ctx, audioPath)
	if err != nil {
		return narration.Synthesis{}, fmt.Errorf("measure audio: %w", err)
	}
	return narration.Synthesis{Audio: audio, DurationSeconds: duration}, nil
}
