// Package narration caches synthesized speech per scene and resolves the
// effective duration a scene plays for.
package narration

import (
	"fmt"
	"strings"

	"github.com/ivlev/scene2video/internal/timeline"
)

// Key identifies one synthesis result. Hits require exact equality on all fields.
type Key struct {
	SceneID    int
	SplitIndex int // 0 when the scene is not split
	Voice      string
	Markup     string
}

// String is used as the single-flight key
func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%s/%s", k.SceneID, k.SplitIndex, k.Voice, k.Markup)
}

// KeyFor builds the lookup key of a scene. ok is false when the scene has no
// voice or nothing to say, in which case it always plays its nominal duration.
func KeyFor(s timeline.Scene) (Key, bool) {
	voice := strings.TrimSpace(s.Voice)
	markup := timeline.RenderedMarkup(s)
	if voice == "" || markup == "" {
		return Key{}, false
	}
	return Key{
		SceneID:    s.SceneID,
		SplitIndex: s.Split(),
		Voice:      voice,
		Markup:     markup,
	}, true
}

// Entry is a synthesized narration
type Entry struct {
	Audio           []byte
	DurationSeconds float64
	SourceMarkup    string
}

// Lookup is the read-only view of the cache used by resolvers
type Lookup func(key Key) (Entry, bool)
