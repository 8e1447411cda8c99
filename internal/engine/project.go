// Package engine assembles a project: session, narration pipeline, transport
// and the headless preview used by the CLI.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/logger"
	"github.com/ivlev/scene2video/internal/narration"
	"github.com/ivlev/scene2video/internal/renderer"
	"github.com/ivlev/scene2video/internal/segment"
	"github.com/ivlev/scene2video/internal/session"
	"github.com/ivlev/scene2video/internal/store"
	"github.com/ivlev/scene2video/internal/system"
	"github.com/ivlev/scene2video/internal/timeline"
	"github.com/ivlev/scene2video/internal/transport"
	"github.com/ivlev/scene2video/internal/tts"
)

// Options configures a Project. Zero fields are built from Config.
type Options struct {
	Config      *config.Config
	Synthesizer narration.Synthesizer
	Store       narration.Store
	Log         *logger.Logger
}

// Project is one opened timeline with its narration pipeline and transport
type Project struct {
	Path     string
	Config   *config.Config
	Session  *session.TimelineSession
	Cache    *narration.Cache
	Narrator *narration.Narrator
	Preview  *renderer.Preview

	transport *transport.Transport
	closer    io.Closer
	log       *logger.Logger
}

// Open loads the timeline at path
func Open(ctx context.Context, path string, opts Options) (*Project, error) {
	tl, err := timeline.ReadTimeline(path)
	if err != nil {
		return nil, fmt.Errorf("read timeline: %w", err)
	}
	return New(ctx, path, tl, opts)
}

// New wires a project around an in-memory timeline. path is where Save writes.
func New(ctx context.Context, path string, tl *timeline.Timeline, opts Options) (*Project, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Log
	if log == nil {
		log = logger.Default()
	}

	p := &Project{Path: path, Config: cfg, log: log.With("engine")}

	st := opts.Store
	if st == nil && !cfg.Cache.Disabled && cfg.Cache.Path != "" {
		db, err := store.Open(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("open narration store: %w", err)
		}
		st, p.closer = db, db
	}

	if st != nil {
		p.Cache = narration.NewPersistentCache(st, func(err error) {
			p.log.Warn("narration store: %v", err)
		})
		n, err := p.Cache.Warm(ctx)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.log.Debug("warmed %d cached narrations", n)
	} else {
		p.Cache = narration.NewCache()
	}

	sess, err := session.New(tl, p.Cache)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Session = sess

	synth := opts.Synthesizer
	if synth == nil {
		cs := tts.NewCommandSynthesizer(cfg.TTS.Command, cfg.TTS.TempDir, log)
		cs.Retry.MaxAttempts = cfg.TTS.MaxAttempts
		cs.Retry.InitialDelay = time.Duration(cfg.TTS.InitialDelay * float64(time.Second))
		synth = cs
	}

	workers := cfg.TTS.Workers
	if workers <= 0 {
		workers = system.RecommendedWorkers(4)
	}
	p.Narrator = narration.NewNarrator(p.Cache, synth, narration.Options{
		Workers: workers,
		OnResolved: func(key narration.Key, e narration.Entry) {
			if p.Session.ApplyNarration(key, e) {
				p.log.Debug("scene %d/%d narrated: %.2fs", key.SceneID, key.SplitIndex, e.DurationSeconds)
			}
		},
		Logger: log,
	})

	p.Preview = renderer.NewPreview(sess, log)
	p.transport = transport.New(sess, segment.Selector{}, p.Cache.Lookup(), p.Preview)
	return p, nil
}

// Prefetch synthesizes every voiced scene of the current revision
func (p *Project) Prefetch(ctx context.Context) error {
	tl, _ := p.Session.Snapshot()
	return p.Narrator.Prefetch(ctx, tl.Scenes)
}

// RequestAll starts background synthesis for every scene and returns how
// many are still pending
func (p *Project) RequestAll(ctx context.Context) int {
	tl, _ := p.Session.Snapshot()
	pending := 0
	for _, s := range tl.Scenes {
		if p.Narrator.Request(ctx, s) == narration.StatusPending {
			pending++
		}
	}
	return pending
}

// Split splits a scene at sentence boundaries and returns the sibling count
func (p *Project) Split(index int) (int, error) {
	return p.Session.Split(index)
}

// Save writes the current revision back to Path
func (p *Project) Save() error {
	if p.Path == "" {
		return errors.New("project has no path")
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0755); err != nil {
		return err
	}
	return p.Session.Save(p.Path)
}

// Close waits for background synthesis and releases the store
func (p *Project) Close() error {
	if p.Narrator != nil {
		p.Narrator.Wait()
	}
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}
