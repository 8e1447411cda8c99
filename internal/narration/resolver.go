package narration

import "github.com/ivlev/scene2video/internal/timeline"

// Resolve returns the effective duration of a scene: the cached narration length
// when a usable entry exists, the nominal duration otherwise. Zero, NaN and
// infinite narration lengths count as absent.
func Resolve(s timeline.Scene, lookup Lookup) float64 {
	if lookup != nil {
		if key, ok := KeyFor(s); ok {
			if entry, hit := lookup(key); hit && timeline.PositiveFinite(entry.DurationSeconds) {
				return entry.DurationSeconds
			}
		}
	}
	return s.Duration
}

// Resolver binds Resolve to a lookup so it can be passed where a duration func is expected
func Resolver(lookup Lookup) func(timeline.Scene) float64 {
	return func(s timeline.Scene) float64 {
		return Resolve(s, lookup)
	}
}

// Effective is like Resolver but falls back to a duration recorded on the scene
// itself (a persisted ttsDuration) before the nominal one. It is what playback
// uses after loading a timeline whose narration was resolved in an earlier run.
func Effective(lookup Lookup) func(timeline.Scene) float64 {
	return func(s timeline.Scene) float64 {
		if lookup != nil {
			if key, ok := KeyFor(s); ok {
				if entry, hit := lookup(key); hit && timeline.PositiveFinite(entry.DurationSeconds) {
					return entry.DurationSeconds
				}
			}
		}
		return s.EffectiveDuration()
	}
}
