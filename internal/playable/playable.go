// Package playable selects the scenes that can actually be rendered from a
// heterogeneous, partly authored timeline.
package playable

import (
	"math"

	"github.com/ivlev/scene2video/internal/timeline"
)

// MinDuration is the shortest segment worth rendering (1ms)
const MinDuration = 0.001

// Segment is a renderable scene with its position in the authored order
type Segment struct {
	Scene         timeline.Scene
	OriginalIndex int
	Duration      float64
}

// DurationOf is the playable length of a scene: narration when resolved,
// otherwise the length of its media range.
func DurationOf(s timeline.Scene) float64 {
	if timeline.PositiveFinite(s.NarrationDuration) {
		return s.NarrationDuration
	}
	start, end := s.Range()
	d := end - start
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0
	}
	return d
}

// Filter keeps scenes with media and a duration above MinDuration, in order
func Filter(scenes []timeline.Scene) []Segment {
	var out []Segment
	for i, s := range scenes {
		if !s.HasMedia() {
			continue
		}
		d := DurationOf(s)
		if d <= MinDuration {
			continue
		}
		out = append(out, Segment{Scene: s, OriginalIndex: i, Duration: d})
	}
	return out
}

// PreviousPlayableDuration sums the durations of the segments before position i
func PreviousPlayableDuration(list []Segment, i int) float64 {
	if i > len(list) {
		i = len(list)
	}
	sum := 0.0
	for j := 0; j < i; j++ {
		sum += list[j].Duration
	}
	return sum
}

// TotalDuration sums every segment
func TotalDuration(list []Segment) float64 {
	return PreviousPlayableDuration(list, len(list))
}

// StartOfOriginal returns the playable time at which the scene with the given
// authored index starts. ok is false when that scene was filtered out.
func StartOfOriginal(list []Segment, originalIndex int) (start float64, ok bool) {
	for j, seg := range list {
		if seg.OriginalIndex == originalIndex {
			return PreviousPlayableDuration(list, j), true
		}
	}
	return 0, false
}
