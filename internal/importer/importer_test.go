package importer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ivlev/scene2video/internal/analyzer"
	"github.com/ivlev/scene2video/internal/logger"
	"github.com/ivlev/scene2video/internal/source"
	"github.com/ivlev/scene2video/internal/timeline"
)

func writePage(t *testing.T, path string, rect image.Rectangle) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 640, 480))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func deck(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writePage(t, filepath.Join(dir, "01.png"), image.Rect(120, 90, 520, 390))
	writePage(t, filepath.Join(dir, "02.png"), image.Rectangle{})
	writePage(t, filepath.Join(dir, "03.png"), image.Rect(20, 20, 180, 180))
	return dir
}

func testOptions(t *testing.T) Options {
	return Options{
		Width:        180,
		Height:       320,
		FPS:          30,
		PageDuration: 3,
		Voice:        "en-US-AriaNeural",
		AssetsDir:    filepath.Join(t.TempDir(), "assets"),
		Script:       []string{"Welcome to the deck.", "That is all for today."},
		Workers:      2,
		Log:          logger.Discard(),
	}
}

func TestImport(t *testing.T) {
	src, err := source.NewImageSource(deck(t))
	if err != nil {
		t.Fatal(err)
	}
	opts := testOptions(t)

	tl, report, err := Import(context.Background(), src, analyzer.NewContrastDetector(), opts)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if report.Pages != 3 || len(report.Skipped) != 1 || report.Skipped[0] != 1 {
		t.Errorf("Unexpected report: %+v", report)
	}
	if len(tl.Scenes) != 2 {
		t.Fatalf("Expected 2 scenes, got %d", len(tl.Scenes))
	}

	first, second := tl.Scenes[0], tl.Scenes[1]
	if first.SceneID == second.SceneID {
		t.Error("Scenes must have distinct identities")
	}
	if first.Transition != timeline.TransitionZoomIn {
		t.Errorf("Dominant block should zoom, got %s", first.Transition)
	}
	if second.Transition != timeline.TransitionFade {
		t.Errorf("Small block should fade, got %s", second.Transition)
	}
	if second.Text.Content != "That is all for today." {
		t.Errorf("Script paragraphs must follow kept pages, got %q", second.Text.Content)
	}
	if first.Duration != timeline.EstimateDuration("Welcome to the deck.") {
		t.Errorf("Duration should be estimated from text, got %f", first.Duration)
	}

	f, err := os.Open(second.Image)
	if err != nil {
		t.Fatalf("Asset missing: %v", err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil || cfg.Width != 180 || cfg.Height != 320 {
		t.Errorf("Asset should match the timeline resolution, got %dx%d %v", cfg.Width, cfg.Height, err)
	}
}

func TestImportOutro(t *testing.T) {
	src, _ := source.NewImageSource(deck(t))
	opts := testOptions(t)
	opts.Script = nil
	opts.OutroURL = "https://example.com/deck"

	tl, _, err := Import(context.Background(), src, analyzer.NewContrastDetector(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(tl.Scenes) != 3 {
		t.Fatalf("Expected 2 pages plus outro, got %d", len(tl.Scenes))
	}
	outro := tl.Scenes[2]
	if !outro.HasMedia() || outro.Duration != 3 || outro.Text.Content != "" {
		t.Errorf("Unexpected outro: %+v", outro)
	}
	// Image folders have no text layer, so pages fall back to the page duration
	if tl.Scenes[0].Duration != 3 {
		t.Errorf("Expected page duration, got %f", tl.Scenes[0].Duration)
	}
}

func TestImportAllBlank(t *testing.T) {
	dir := t.TempDir()
	writePage(t, filepath.Join(dir, "01.png"), image.Rectangle{})
	src, _ := source.NewImageSource(dir)

	_, report, err := Import(context.Background(), src, analyzer.NewContrastDetector(), testOptions(t))
	if !errors.Is(err, ErrNoPages) {
		t.Errorf("Expected ErrNoPages, got %v", err)
	}
	if len(report.Skipped) != 1 {
		t.Errorf("Blank page should be reported, got %+v", report)
	}
}

func TestReadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.txt")
	body := "First line\ncontinues here.\n\n\n  Second paragraph.  \n\nThird.\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadScript(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"First line continues here.", "Second paragraph.", "Third."}
	if len(got) != len(want) {
		t.Fatalf("Expected %d paragraphs, got %q", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("paragraph %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
