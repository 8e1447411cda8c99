// Package importer turns a slide deck (PDF or image folder) into a timeline:
// one scene per non-blank page, narration text from a script file.
package importer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/scene2video/internal/analyzer"
	"github.com/ivlev/scene2video/internal/logger"
	"github.com/ivlev/scene2video/internal/source"
	"github.com/ivlev/scene2video/internal/system"
	"github.com/ivlev/scene2video/internal/timeline"
)

// DominantShare is the page share a block must cover for the scene to zoom
// into it instead of fading.
const DominantShare = 0.25

// ErrNoPages is returned when every page was blank or the source is empty
var ErrNoPages = errors.New("no usable pages")

type Options struct {
	DPI          int
	Width        int
	Height       int
	FPS          int
	PageDuration float64 // Used for pages without narration text
	Transition   timeline.Transition
	Voice        string
	AssetsDir    string
	Script       []string // Narration paragraphs, matched to kept pages in order
	OutroURL     string   // Appends a QR end card when set
	Workers      int
	Log          *logger.Logger
}

// Report summarizes an import
type Report struct {
	Pages   int
	Skipped []int // Source indices of blank pages
	Scenes  int
}

type page struct {
	path    string
	text    string
	blank   bool
	focused bool
}

// Import renders every page, drops blank ones and builds a timeline
func Import(ctx context.Context, src source.Source, det *analyzer.ContrastDetector, opts Options) (*timeline.Timeline, Report, error) {
	opts = withDefaults(opts)
	log := opts.Log.With("import")
	count := src.PageCount()
	report := Report{Pages: count}
	if count == 0 {
		return nil, report, ErrNoPages
	}
	if err := os.MkdirAll(opts.AssetsDir, 0755); err != nil {
		return nil, report, fmt.Errorf("create assets dir: %w", err)
	}

	pool := system.NewImagePool()
	pages := make([]page, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := processPage(src, det, pool, i, opts)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			pages[i] = p
			log.Debug("page %d/%d done", i+1, count)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, report, err
	}

	tl := timeline.New()
	tl.FPS = opts.FPS
	tl.Resolution = timeline.Resolution{Width: opts.Width, Height: opts.Height}

	kept := 0
	for i, p := range pages {
		if p.blank {
			report.Skipped = append(report.Skipped, i)
			log.Info("page %d is blank, skipped", i+1)
			continue
		}
		text := p.text
		if kept < len(opts.Script) {
			text = opts.Script[kept]
		}
		kept++
		tl.Scenes = append(tl.Scenes, newScene(tl.NextSceneID(), p, text, opts))
	}
	if kept == 0 {
		return nil, report, ErrNoPages
	}
	if len(opts.Script) > kept {
		log.Warn("script has %d paragraphs for %d pages, extra text ignored", len(opts.Script), kept)
	}

	if opts.OutroURL != "" {
		outro, err := outroScene(tl.NextSceneID(), opts)
		if err != nil {
			return nil, report, err
		}
		tl.Scenes = append(tl.Scenes, outro)
	}

	report.Scenes = len(tl.Scenes)
	if err := tl.Validate(); err != nil {
		return nil, report, err
	}
	return tl, report, nil
}

func withDefaults(opts Options) Options {
	if opts.DPI <= 0 {
		opts.DPI = 150
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = timeline.DefaultWidth, timeline.DefaultHeight
	}
	if opts.FPS <= 0 {
		opts.FPS = timeline.DefaultFPS
	}
	if !timeline.PositiveFinite(opts.PageDuration) {
		opts.PageDuration = 4
	}
	if opts.Transition == "" {
		opts.Transition = timeline.TransitionFade
	}
	if opts.AssetsDir == "" {
		opts.AssetsDir = "assets"
	}
	if opts.Workers <= 0 {
		opts.Workers = system.RecommendedWorkers(8)
	}
	if opts.Log == nil {
		opts.Log = logger.Default()
	}
	return opts
}

func processPage(src source.Source, det *analyzer.ContrastDetector, pool *system.ImagePool, i int, opts Options) (page, error) {
	img, err := src.RenderPage(i, opts.DPI)
	if err != nil {
		return page{}, err
	}
	profile, err := det.Analyze(img)
	if err != nil {
		return page{}, err
	}
	if profile.Blank {
		return page{blank: true}, nil
	}

	text, err := src.PageText(i)
	if err != nil {
		text = ""
	}

	frame := pool.Get(image.Rect(0, 0, opts.Width, opts.Height))
	defer pool.Put(frame)
	fit(frame, img)

	path := filepath.Join(opts.AssetsDir, fmt.Sprintf("page_%03d.png", i+1))
	if err := writePNG(path, frame); err != nil {
		return page{}, err
	}
	return page{
		path:    path,
		text:    strings.TrimSpace(text),
		focused: profile.Dominant(img.Bounds(), DominantShare),
	}, nil
}

// fit letterboxes src into dst keeping its aspect ratio
func fit(dst *image.RGBA, src image.Image) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	sb, db := src.Bounds(), dst.Bounds()
	if sb.Empty() {
		return
	}
	scale := float64(db.Dx()) / float64(sb.Dx())
	if s := float64(db.Dy()) / float64(sb.Dy()); s < scale {
		scale = s
	}
	w, h := int(float64(sb.Dx())*scale), int(float64(sb.Dy())*scale)
	x0 := db.Min.X + (db.Dx()-w)/2
	y0 := db.Min.Y + (db.Dy()-h)/2
	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), src, sb, draw.Src, nil)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

func newScene(id int, p page, text string, opts Options) timeline.Scene {
	s := timeline.Scene{
		SceneID:            id,
		Duration:           opts.PageDuration,
		Transition:         opts.Transition,
		TransitionDuration: timeline.DefaultTransitionDuration,
		Voice:              opts.Voice,
		Text:               timeline.Text{Content: text},
		Image:              p.path,
	}
	if text != "" {
		s.Duration = timeline.EstimateDuration(text)
	}
	if p.focused {
		s.Transition = timeline.TransitionZoomIn
	}
	if s.TransitionDuration > s.Duration {
		s.TransitionDuration = s.Duration / 2
	}
	return s
}

func outroScene(id int, opts Options) (timeline.Scene, error) {
	size := opts.Width
	if opts.Height < size {
		size = opts.Height
	}
	path := filepath.Join(opts.AssetsDir, "outro_qr.png")
	if err := qrcode.WriteFile(opts.OutroURL, qrcode.Medium, size/2, path); err != nil {
		return timeline.Scene{}, fmt.Errorf("outro qr code: %w", err)
	}
	return timeline.Scene{
		SceneID:    id,
		Duration:   opts.PageDuration,
		Transition: timeline.TransitionNone,
		Image:      path,
	}, nil
}
