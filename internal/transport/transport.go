// Package transport owns the playback clock. It turns timeline revisions and
// wall-clock ticks into render calls.
package transport

import (
	"errors"
	"math"
	"time"

	"github.com/ivlev/scene2video/internal/narration"
	"github.com/ivlev/scene2video/internal/segment"
	"github.com/ivlev/scene2video/internal/timeline"
)

var (
	// ErrNothingToPlay is returned by Play when the timeline has no duration
	ErrNothingToPlay = errors.New("nothing to play")
	// ErrInvalidSpeed is returned for zero, negative or non-finite speeds
	ErrInvalidSpeed = errors.New("playback speed must be a positive finite number")
)

// State of the transport
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// RenderOptions accompany every render call
type RenderOptions struct {
	InTransitionWindow bool
	TransitionProgress float64
	SkipAnimation      bool // Hard cut: seeks and corrective re-syncs

	// Layout the scene index was located in. Renderers must resolve the
	// index against it, not against a newer revision.
	Timeline *timeline.Timeline
	Spans    []segment.Span
	Revision uint64
}

// Renderer paints a target frame. It is implemented outside the engine.
type Renderer interface {
	RenderAt(sceneIndex int, intraOffset float64, opts RenderOptions)
}

// TimelineSource publishes immutable timeline revisions
type TimelineSource interface {
	Snapshot() (*timeline.Timeline, uint64)
}

// Selector maps absolute time onto a scene layout
type Selector interface {
	Locate(spans []segment.Span, absoluteTime float64) segment.Target
	TotalDuration(spans []segment.Span) float64
}

// Status is a read-only copy of the transport state
type Status struct {
	State       State
	CurrentTime float64
	Total       float64
	Speed       float64
	SceneIndex  int
	Revision    uint64
}

// Transport is the playback state machine. It is not safe for concurrent use;
// one goroutine (see Loop) owns it and is the only writer of the clock.
type Transport struct {
	source     TimelineSource
	selector   Selector
	durationOf segment.DurationFunc
	renderer   Renderer

	state       State
	currentTime float64
	speed       float64
	total       float64
	tl          *timeline.Timeline
	spans       []segment.Span
	revision    uint64
	lastScene   int

	anchor   time.Time
	anchored bool
}

// New builds a transport. lookup supplies resolved narration lengths; scenes
// without an entry play their recorded or nominal duration.
func New(source TimelineSource, selector Selector, lookup narration.Lookup, renderer Renderer) *Transport {
	t := &Transport{
		source:     source,
		selector:   selector,
		durationOf: narration.Effective(lookup),
		renderer:   renderer,
		speed:      timeline.DefaultSpeed,
		lastScene:  -1,
	}
	if tl, _ := source.Snapshot(); tl != nil && timeline.PositiveFinite(tl.PlaybackSpeed) {
		t.speed = tl.PlaybackSpeed
	}
	t.resync()
	return t
}

// Play starts or resumes playback. At the end of the timeline it restarts from 0.
func (t *Transport) Play() error {
	t.resync()
	if t.total <= 0 {
		return ErrNothingToPlay
	}
	if t.state == Playing {
		return nil
	}
	if t.currentTime >= t.total {
		t.currentTime = 0
		t.render(t.selector.Locate(t.spans, 0), true)
	}
	t.state = Playing
	t.anchored = false
	return nil
}

// Pause freezes the clock
func (t *Transport) Pause() {
	if t.state == Playing {
		t.state = Paused
		t.anchored = false
	}
}

// Stop halts playback and rewinds to 0
func (t *Transport) Stop() {
	t.state = Stopped
	t.anchored = false
	t.resync()
	t.currentTime = 0
	if len(t.spans) > 0 {
		t.render(t.selector.Locate(t.spans, 0), true)
	}
}

// Seek jumps to an absolute time as a hard cut. The state is unchanged.
func (t *Transport) Seek(seconds float64) {
	t.resync()
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	t.currentTime = segment.ClampPlaybackTime(seconds, t.total)
	if len(t.spans) > 0 {
		t.render(t.selector.Locate(t.spans, t.currentTime), true)
	}
}

// SetSpeed changes the playback rate without moving the clock. The wall-clock
// anchor is kept; callers that know the wall time of the change use SetSpeedAt.
func (t *Transport) SetSpeed(speed float64) error {
	return t.SetSpeedAt(speed, time.Time{})
}

// SetSpeedAt changes the playback rate at wall time now. Wall time since the
// last Advance is credited at the old rate and the anchor moves to now.
func (t *Transport) SetSpeedAt(speed float64, now time.Time) error {
	if !timeline.PositiveFinite(speed) {
		return ErrInvalidSpeed
	}
	if t.state == Playing && t.anchored && !now.IsZero() {
		if d := now.Sub(t.anchor).Seconds(); d > 0 {
			t.currentTime = segment.ClampPlaybackTime(t.currentTime+d*t.speed, t.total)
		}
		t.anchor = now
	}
	t.speed = speed
	return nil
}

// Advance ticks with the wall time elapsed since the previous Advance
func (t *Transport) Advance(now time.Time) {
	if t.state != Playing {
		return
	}
	delta := 0.0
	if t.anchored {
		delta = now.Sub(t.anchor).Seconds()
	}
	t.anchor = now
	t.anchored = true
	t.Tick(delta)
}

// Tick advances the clock by wallDelta*speed and renders the located frame.
// Only effective while playing.
func (t *Transport) Tick(wallDelta float64) {
	if t.state != Playing {
		return
	}
	resynced := t.resync()
	if wallDelta > 0 && !math.IsInf(wallDelta, 0) {
		t.currentTime += wallDelta * t.speed
	}

	tg := t.selector.Locate(t.spans, t.currentTime)
	if tg.EndReached {
		t.currentTime = t.total
		t.state = Stopped
		t.anchored = false
	}
	if tg.SceneIndex < 0 {
		return
	}
	t.render(tg, resynced && tg.SceneIndex != t.lastScene)
}

// Sync reconciles with the latest timeline revision outside of ticks. When
// the current time now falls into another scene it re-renders as a hard cut.
// Reports whether a render happened.
func (t *Transport) Sync() bool {
	if !t.resync() || len(t.spans) == 0 {
		return false
	}
	tg := t.selector.Locate(t.spans, t.currentTime)
	if tg.SceneIndex == t.lastScene {
		return false
	}
	t.render(tg, true)
	return true
}

// Status returns a copy of the current state
func (t *Transport) Status() Status {
	return Status{
		State:       t.state,
		CurrentTime: t.currentTime,
		Total:       t.total,
		Speed:       t.speed,
		SceneIndex:  t.lastScene,
		Revision:    t.revision,
	}
}

// State returns the state machine position
func (t *Transport) State() State { return t.state }

// CurrentTime returns the playback position in seconds
func (t *Transport) CurrentTime() float64 { return t.currentTime }

// TotalDuration returns the length of the current layout
func (t *Transport) TotalDuration() float64 { return t.total }

// resync rebuilds the layout when the source published a newer revision
func (t *Transport) resync() bool {
	tl, rev := t.source.Snapshot()
	if rev == t.revision && t.spans != nil {
		return false
	}
	t.revision = rev
	t.tl = tl
	if tl == nil {
		t.spans = []segment.Span{}
	} else {
		t.spans = segment.Spans(tl.Scenes, t.durationOf)
	}
	t.total = t.selector.TotalDuration(t.spans)
	t.currentTime = segment.ClampPlaybackTime(t.currentTime, t.total)
	return true
}

func (t *Transport) render(tg segment.Target, skip bool) {
	t.lastScene = tg.SceneIndex
	if t.renderer == nil {
		return
	}
	t.renderer.RenderAt(tg.SceneIndex, tg.IntraOffset, RenderOptions{
		InTransitionWindow: tg.InTransitionWindow,
		TransitionProgress: tg.TransitionProgress,
		SkipAnimation:      skip,
		Timeline:           t.tl,
		Spans:              t.spans,
		Revision:           t.revision,
	})
}
