package tts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ivlev/scene2video/internal/logger"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}
}

func TestRetry(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastRetry(), func(attempt int) (int, error) {
		calls++
		if attempt < 3 {
			return 0, errors.New("flaky")
		}
		return 42, nil
	})
	if err != nil || got != 42 || calls != 3 {
		t.Errorf("Retry = %d, %v after %d calls", got, err, calls)
	}

	calls = 0
	_, err = Retry(context.Background(), fastRetry(), func(int) (int, error) {
		calls++
		return 0, errors.New("down")
	})
	if err == nil || calls != 3 {
		t.Errorf("Expected failure after 3 calls, got %v after %d", err, calls)
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastRetry(), func(int) (string, error) {
		calls++
		return "", ErrPermanent
	})
	if !errors.Is(err, ErrPermanent) || calls != 1 {
		t.Errorf("Permanent errors must not be retried: %v after %d calls", err, calls)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx, fastRetry(), func(int) (int, error) { return 1, nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-tts")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommandSynthesizer(t *testing.T) {
	script := writeScript(t, `while [ $# -gt 0 ]; do
  if [ "$1" = "--write-media" ]; then printf 'ID3' > "$2"; fi
  shift
done
`)
	s := NewCommandSynthesizer(script, t.TempDir(), logger.Discard())
	s.Retry = fastRetry()
	s.Measure = func(ctx context.Context, path string) (float64, error) { return 1.25, nil }

	res, err := s.Synthesize(context.Background(), "en-US-AriaNeural", "Hello there.")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(res.Audio) != "ID3" || res.DurationSeconds != 1.25 {
		t.Errorf("Unexpected synthesis: %q %f", res.Audio, res.DurationSeconds)
	}

	leftovers, _ := os.ReadDir(s.TempDir)
	if len(leftovers) != 0 {
		t.Errorf("Temp files not cleaned up: %d left", len(leftovers))
	}
}

func TestCommandSynthesizerFailure(t *testing.T) {
	s := NewCommandSynthesizer(writeScript(t, "echo 'quota exceeded' >&2\nexit 3\n"), t.TempDir(), logger.Discard())
	s.Retry = fastRetry()
	if _, err := s.Synthesize(context.Background(), "aria", "text"); err == nil {
		t.Fatal("Expected an error from a failing command")
	}

	if _, err := s.Synthesize(context.Background(), "", "text"); !errors.Is(err, ErrPermanent) {
		t.Errorf("Empty voice must be permanent, got %v", err)
	}
}
