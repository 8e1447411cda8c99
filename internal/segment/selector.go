// Package segment maps an absolute timeline time to the scene that should be
// on screen. Everything here is pure: the same layout and time always give the
// same target, which is what makes arbitrary seeking correct.
package segment

import (
	"math"

	"github.com/ivlev/scene2video/internal/timeline"
)

// Span is the effective layout of one scene
type Span struct {
	Duration           float64 // Effective duration in seconds
	TransitionDuration float64 // Trailing transition slice
}

// Length is the time the scene occupies on the timeline
func (s Span) Length() float64 {
	return s.Duration + s.TransitionDuration
}

// Target is what should be rendered at a given time
type Target struct {
	SceneIndex         int
	IntraOffset        float64
	InTransitionWindow bool
	TransitionProgress float64 // 0..1, eased, only meaningful inside the window
	EndReached         bool
}

// DurationFunc resolves the effective duration of a scene
type DurationFunc func(scene timeline.Scene) float64

// Spans builds the layout of scenes using durationOf for the effective duration
func Spans(scenes []timeline.Scene, durationOf DurationFunc) []Span {
	spans := make([]Span, len(scenes))
	for i, s := range scenes {
		d := durationOf(s)
		if !nonNegativeFinite(d) {
			d = 0
		}
		tr := s.TransitionDuration
		if !nonNegativeFinite(tr) {
			tr = 0
		}
		spans[i] = Span{Duration: d, TransitionDuration: tr}
	}
	return spans
}

// Locate finds the scene containing absoluteTime
func Locate(spans []Span, absoluteTime float64) Target {
	if len(spans) == 0 {
		return Target{SceneIndex: -1, EndReached: true}
	}

	t := absoluteTime
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		t = 0
	}

	start := 0.0
	for i, s := range spans {
		end := start + s.Length()
		if t < end {
			return target(i, t-start, s, false)
		}
		start = end
	}

	last := len(spans) - 1
	return target(last, spans[last].Length(), spans[last], true)
}

func target(index int, offset float64, s Span, end bool) Target {
	tg := Target{SceneIndex: index, IntraOffset: offset, EndReached: end}
	if offset > s.Duration && s.TransitionDuration > 0 {
		tg.InTransitionWindow = true
		tg.TransitionProgress = easeInOutCubic(math.Min((offset-s.Duration)/s.TransitionDuration, 1))
	}
	return tg
}

// StartTimeOf returns the prefix sum of span lengths before index.
// Indices past the end return the total duration.
func StartTimeOf(spans []Span, index int) float64 {
	if index > len(spans) {
		index = len(spans)
	}
	start := 0.0
	for i := 0; i < index; i++ {
		start += spans[i].Length()
	}
	return start
}

// TotalDuration is the sum of all span lengths
func TotalDuration(spans []Span) float64 {
	return StartTimeOf(spans, len(spans))
}

// ClampPlaybackTime limits t to [0, total]. Non-finite times map to 0.
func ClampPlaybackTime(t, total float64) float64 {
	if math.IsNaN(t) || math.IsInf(t, 0) || total <= 0 || math.IsNaN(total) {
		return 0
	}
	if t < 0 {
		return 0
	}
	if t > total {
		return total
	}
	return t
}

// Selector exposes the package functions as a value for constructor injection
type Selector struct{}

func (Selector) Locate(spans []Span, absoluteTime float64) Target { return Locate(spans, absoluteTime) }
func (Selector) StartTimeOf(spans []Span, index int) float64     { return StartTimeOf(spans, index) }
func (Selector) TotalDuration(spans []Span) float64              { return TotalDuration(spans) }

// easeInOutCubic applies smooth easing function
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

func nonNegativeFinite(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
