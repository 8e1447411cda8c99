// Package renderer implements the headless preview renderer: it turns render
// calls into camera states and keeps frame statistics.
package renderer

import (
	"sync"

	"github.com/ivlev/scene2video/internal/logger"
	"github.com/ivlev/scene2video/internal/segment"
	"github.com/ivlev/scene2video/internal/timeline"
	"github.com/ivlev/scene2video/internal/transport"
)

// MovementZoom is the zoom reached at the end of a zoom transition
const MovementZoom = 1.2

// CameraState is the camera at one frame, in normalized frame units
type CameraState struct {
	X       float64 // Horizontal shift, -1..1
	Y       float64 // Vertical shift, -1..1
	Zoom    float64 // 1.0 = no zoom
	Opacity float64 // Of the outgoing scene during a transition window
}

// Frame is one render call
type Frame struct {
	SceneIndex int
	SceneID    int
	Offset     float64
	Camera     CameraState
	HardCut    bool
}

// Stats summarizes what a preview rendered
type Stats struct {
	Frames       int
	HardCuts     int
	SceneChanges int
	Last         Frame
}

// Preview implements transport.Renderer. It is safe for concurrent use:
// the playback loop renders while others read Stats.
type Preview struct {
	source transport.TimelineSource
	log    *logger.Logger

	mu    sync.Mutex
	stats Stats
	seen  bool
}

var _ transport.Renderer = (*Preview)(nil)

func NewPreview(source transport.TimelineSource, log *logger.Logger) *Preview {
	if log == nil {
		log = logger.Default()
	}
	return &Preview{source: source, log: log.With("preview")}
}

// RenderAt implements transport.Renderer. The index is resolved against the
// layout it was located in; older transports without one fall back to the
// latest snapshot.
func (p *Preview) RenderAt(sceneIndex int, intraOffset float64, opts transport.RenderOptions) {
	frame := Frame{SceneIndex: sceneIndex, Offset: intraOffset, HardCut: opts.SkipAnimation}
	frame.Camera = CameraState{Zoom: 1, Opacity: 1}

	tl := opts.Timeline
	if tl == nil {
		tl, _ = p.source.Snapshot()
	}
	if tl != nil && sceneIndex >= 0 && sceneIndex < len(tl.Scenes) {
		frame.SceneID = tl.Scenes[sceneIndex].SceneID
		frame.Camera = GroupCamera(tl, opts.Spans, sceneIndex, intraOffset, opts)
	}

	p.mu.Lock()
	changed := !p.seen || p.stats.Last.SceneIndex != sceneIndex
	p.seen = true
	p.stats.Frames++
	if frame.HardCut {
		p.stats.HardCuts++
	}
	if changed {
		p.stats.SceneChanges++
	}
	p.stats.Last = frame
	p.mu.Unlock()

	if changed {
		p.log.Debug("scene %d (id %d) at +%.2fs", sceneIndex, frame.SceneID, intraOffset)
	}
}

// Stats returns a copy of the counters
func (p *Preview) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// GroupCamera computes the camera of scene index at offset. Inside a split
// group the movement carried by the first sibling keeps running, so the
// camera is continuous across sibling boundaries. spans is the layout the
// index was located in; nil falls back to the scenes' own durations.
func GroupCamera(tl *timeline.Timeline, spans []segment.Span, index int, offset float64, opts transport.RenderOptions) CameraState {
	s := tl.Scenes[index]
	head := movementHead(tl, index)
	if head < 0 || head == index {
		return Camera(s, offset, opts)
	}

	elapsed := offset
	for k := head; k < index; k++ {
		if len(spans) == len(tl.Scenes) {
			elapsed += spans[k].Length()
		} else {
			elapsed += tl.Scenes[k].EffectiveDuration() + tl.Scenes[k].TransitionDuration
		}
	}
	return Camera(tl.Scenes[head], elapsed, opts)
}

// movementHead returns the index of the sibling carrying the movement of the
// group scene index belongs to, or -1
func movementHead(tl *timeline.Timeline, index int) int {
	s := tl.Scenes[index]
	if s.SplitIndex == nil {
		return -1
	}
	for _, i := range tl.Group(s.SceneID) {
		sc := tl.Scenes[i]
		if sc.SplitIndex != nil && sc.Transition.IsMovement() && i <= index {
			return i
		}
	}
	return -1
}

// Camera computes the camera of scene s at offset. Movement transitions
// animate over their transition duration; the others fade the scene out
// inside their trailing window. A hard cut lands on the frame at offset.
func Camera(s timeline.Scene, offset float64, opts transport.RenderOptions) CameraState {
	c := CameraState{Zoom: 1, Opacity: 1}

	if s.Transition.IsMovement() {
		span := s.TransitionDuration
		if span <= 0 {
			span = s.EffectiveDuration()
		}
		t := 1.0
		if span > 0 {
			t = clamp01(offset / span)
		}
		t = easeInOutCubic(t)

		switch s.Transition {
		case timeline.TransitionZoomIn:
			c.Zoom = lerp(1, MovementZoom, t)
		case timeline.TransitionZoomOut:
			c.Zoom = lerp(MovementZoom, 1, t)
		case timeline.TransitionSlideLeft:
			c.X = lerp(0, -1, t)
		case timeline.TransitionSlideRight:
			c.X = lerp(0, 1, t)
		case timeline.TransitionSlideUp:
			c.Y = lerp(0, -1, t)
		case timeline.TransitionSlideDown:
			c.Y = lerp(0, 1, t)
		}
		return c
	}

	if opts.InTransitionWindow && !s.Transition.IsNone() {
		c.Opacity = lerp(1, 0, opts.TransitionProgress)
	}
	return c
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	u := -2*t + 2
	return 1 - u*u*u/2
}
