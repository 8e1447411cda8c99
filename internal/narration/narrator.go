package narration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ivlev/scene2video/internal/logger"
	"github.com/ivlev/scene2video/internal/timeline"
)

var (
	// ErrNoVoice is returned for scenes without a voice or text
	ErrNoVoice = errors.New("scene has no narration voice")
	// ErrEmptyNarration is returned when a provider yields no usable duration
	ErrEmptyNarration = errors.New("synthesis returned zero-length narration")
)

// Synthesis is what a provider returns for one request
type Synthesis struct {
	Audio           []byte
	DurationSeconds float64
}

// Synthesizer is the external text-to-speech provider
type Synthesizer interface {
	Synthesize(ctx context.Context, voiceID, renderedText string) (Synthesis, error)
}

// Status is the per-scene narration state surfaced to the UI
type Status int

const (
	StatusMissing     Status = iota // No voice: narration required but not configured
	StatusPending                   // Synthesis in flight or not yet requested
	StatusReady                     // Cached
	StatusUnavailable               // Last synthesis failed; retry possible
)

func (s Status) String() string {
	switch s {
	case StatusMissing:
		return "missing"
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Options configures a Narrator
type Options struct {
	Workers    int                     // Prefetch concurrency, defaults to 2
	OnResolved func(key Key, e Entry) // Called after an entry lands in the cache
	Logger     *logger.Logger
}

// Narrator coordinates synthesis requests and is the sole writer of the cache.
// Requests for the same key share one provider call.
type Narrator struct {
	cache      *Cache
	synth      Synthesizer
	workers    int
	onResolved func(Key, Entry)
	log        *logger.Logger

	group singleflight.Group
	wg    sync.WaitGroup

	mu       sync.Mutex
	inFlight map[Key]struct{}
	failures map[Key]error
}

// NewNarrator wires a cache to a provider
func NewNarrator(cache *Cache, synth Synthesizer, opts Options) *Narrator {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	return &Narrator{
		cache:      cache,
		synth:      synth,
		workers:    opts.Workers,
		onResolved: opts.OnResolved,
		log:        opts.Logger.With("narration"),
		inFlight:   make(map[Key]struct{}),
		failures:   make(map[Key]error),
	}
}

// Request starts synthesis for a scene in the background and returns the
// current status without blocking. Pausing or seeking never cancels it.
func (n *Narrator) Request(ctx context.Context, s timeline.Scene) Status {
	key, ok := KeyFor(s)
	if !ok {
		return StatusMissing
	}
	if _, hit := n.cache.Get(key); hit {
		return StatusReady
	}

	n.mu.Lock()
	if _, busy := n.inFlight[key]; busy {
		n.mu.Unlock()
		return StatusPending
	}
	if _, failed := n.failures[key]; failed {
		n.mu.Unlock()
		return StatusUnavailable
	}
	n.mu.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if _, err := n.Synthesize(ctx, s); err != nil && !errors.Is(err, context.Canceled) {
			n.log.Warn("scene %d/%d: narration unavailable: %v", key.SceneID, key.SplitIndex, err)
		}
	}()
	return StatusPending
}

// Synthesize resolves the narration of a scene synchronously, sharing the
// provider call with any concurrent request for the same key.
func (n *Narrator) Synthesize(ctx context.Context, s timeline.Scene) (Entry, error) {
	key, ok := KeyFor(s)
	if !ok {
		return Entry{}, ErrNoVoice
	}
	if e, hit := n.cache.Get(key); hit {
		return e, nil
	}

	n.mu.Lock()
	n.inFlight[key] = struct{}{}
	n.mu.Unlock()

	// Captured before the call so that an invalidation racing with it wins
	epoch := n.cache.Epoch(key)

	v, err, _ := n.group.Do(key.String(), func() (interface{}, error) {
		res, err := n.synth.Synthesize(ctx, key.Voice, key.Markup)
		if err != nil {
			return Entry{}, err
		}
		if !timeline.PositiveFinite(res.DurationSeconds) {
			return Entry{}, fmt.Errorf("%w: %v", ErrEmptyNarration, res.DurationSeconds)
		}

		entry := Entry{Audio: res.Audio, DurationSeconds: res.DurationSeconds, SourceMarkup: key.Markup}
		if !n.cache.PutIfCurrent(key, entry, epoch) {
			n.log.Debug("scene %d/%d: dropped stale narration", key.SceneID, key.SplitIndex)
			return entry, nil
		}
		n.log.Debug("scene %d/%d: narration %.2fs", key.SceneID, key.SplitIndex, entry.DurationSeconds)
		if n.onResolved != nil {
			n.onResolved(key, entry)
		}
		return entry, nil
	})

	n.mu.Lock()
	delete(n.inFlight, key)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			n.failures[key] = err
		}
	} else {
		delete(n.failures, key)
	}
	n.mu.Unlock()

	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

// Prefetch synthesizes every scene with bounded concurrency. Individual
// failures do not stop the others; they are joined in the returned error.
func (n *Narrator) Prefetch(ctx context.Context, scenes []timeline.Scene) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.workers)

	var (
		mu   sync.Mutex
		errs []error
	)
	for _, s := range scenes {
		if _, ok := KeyFor(s); !ok {
			continue
		}
		s := s
		g.Go(func() error {
			if _, err := n.Synthesize(gctx, s); err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				mu.Lock()
				errs = append(errs, fmt.Errorf("scene %d/%d: %w", s.SceneID, s.Split(), err))
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// Retry clears a failure flag and requests the scene again
func (n *Narrator) Retry(ctx context.Context, s timeline.Scene) Status {
	if key, ok := KeyFor(s); ok {
		n.mu.Lock()
		delete(n.failures, key)
		n.mu.Unlock()
	}
	return n.Request(ctx, s)
}

// Status reports the narration state of a scene
func (n *Narrator) Status(s timeline.Scene) Status {
	key, ok := KeyFor(s)
	if !ok {
		return StatusMissing
	}
	if _, hit := n.cache.Get(key); hit {
		return StatusReady
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, failed := n.failures[key]; failed {
		if _, busy := n.inFlight[key]; !busy {
			return StatusUnavailable
		}
	}
	return StatusPending
}

// Failure returns the last synthesis error for a scene, if any
func (n *Narrator) Failure(s timeline.Scene) error {
	key, ok := KeyFor(s)
	if !ok {
		return ErrNoVoice
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.failures[key]
}

// Wait blocks until background requests started by Request have finished.
// Teardown may skip it; an orphaned entry landing later is harmless.
func (n *Narrator) Wait() {
	n.wg.Wait()
}
