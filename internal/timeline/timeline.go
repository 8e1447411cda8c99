// Package timeline describes the ordered scenes of a short video and the
// invariants every persisted revision must satisfy.
package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// Defaults for a vertical short
const (
	DefaultFPS    = 30
	DefaultWidth  = 1080
	DefaultHeight = 1920
	DefaultSpeed  = 1.0
)

// ErrInvariant is wrapped by every InvariantError
var ErrInvariant = errors.New("timeline invariant violated")

// InvariantError points at the scene that breaks a timeline invariant
type InvariantError struct {
	Index  int
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("scene %d: %s", e.Index, e.Reason)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}

// Resolution is the output frame size
type Resolution struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Background is the single looping background track
type Background struct {
	URL    string  `yaml:"url" json:"url"`
	Volume float64 `yaml:"volume" json:"volume"`
}

// Timeline is one revision of the authored video
type Timeline struct {
	FPS           int         `yaml:"fps" json:"fps"`
	Resolution    Resolution  `yaml:"resolution" json:"resolution"`
	PlaybackSpeed float64     `yaml:"playbackSpeed" json:"playbackSpeed"`
	Background    *Background `yaml:"background,omitempty" json:"background,omitempty"`
	Scenes        []Scene     `yaml:"scenes" json:"scenes"`
}

// New returns an empty timeline with vertical-video defaults
func New() *Timeline {
	return &Timeline{
		FPS:           DefaultFPS,
		Resolution:    Resolution{Width: DefaultWidth, Height: DefaultHeight},
		PlaybackSpeed: DefaultSpeed,
	}
}

// UnmarshalYAML fills defaults for fields a document leaves out
func (t *Timeline) UnmarshalYAML(value *yaml.Node) error {
	type plain Timeline
	p := plain(*New())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*t = Timeline(p)
	return nil
}

// UnmarshalJSON fills defaults for fields a document leaves out
func (t *Timeline) UnmarshalJSON(data []byte) error {
	type plain Timeline
	p := plain(*New())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Timeline(p)
	return nil
}

// Clone returns a deep copy
func (t *Timeline) Clone() *Timeline {
	c := *t
	if t.Background != nil {
		bg := *t.Background
		c.Background = &bg
	}
	c.Scenes = make([]Scene, len(t.Scenes))
	for i, s := range t.Scenes {
		c.Scenes[i] = s.Clone()
	}
	return &c
}

// NextSceneID returns an identity not used by any scene
func (t *Timeline) NextSceneID() int {
	maxID := 0
	for _, s := range t.Scenes {
		if s.SceneID > maxID {
			maxID = s.SceneID
		}
	}
	return maxID + 1
}

// Group returns the indices of all scenes sharing sceneID, in timeline order
func (t *Timeline) Group(sceneID int) []int {
	var idx []int
	for i, s := range t.Scenes {
		if s.SceneID == sceneID {
			idx = append(idx, i)
		}
	}
	return idx
}

// Validate checks the timeline invariants
func (t *Timeline) Validate() error {
	if !PositiveFinite(t.PlaybackSpeed) {
		return fmt.Errorf("%w: playback speed must be > 0, got %v", ErrInvariant, t.PlaybackSpeed)
	}

	type pair struct{ id, split int }
	seen := make(map[pair]int, len(t.Scenes))

	for i, s := range t.Scenes {
		if s.SplitIndex != nil && *s.SplitIndex < 1 {
			return &InvariantError{Index: i, Reason: fmt.Sprintf("splitIndex must be >= 1, got %d", *s.SplitIndex)}
		}
		p := pair{s.SceneID, s.Split()}
		if prev, dup := seen[p]; dup {
			return &InvariantError{Index: i, Reason: fmt.Sprintf("duplicates (sceneId=%d, splitIndex=%d) of scene %d", p.id, p.split, prev)}
		}
		seen[p] = i

		if !s.Transition.Valid() {
			return &InvariantError{Index: i, Reason: fmt.Sprintf("unknown transition %q", s.Transition)}
		}
		if !nonNegativeFinite(s.Duration) {
			return &InvariantError{Index: i, Reason: fmt.Sprintf("invalid duration %v", s.Duration)}
		}
		if !nonNegativeFinite(s.TransitionDuration) {
			return &InvariantError{Index: i, Reason: fmt.Sprintf("invalid transition duration %v", s.TransitionDuration)}
		}
		if math.IsNaN(s.NarrationDuration) || s.NarrationDuration < 0 {
			return &InvariantError{Index: i, Reason: fmt.Sprintf("invalid narration duration %v", s.NarrationDuration)}
		}
	}

	return t.validateGroups()
}

// validateGroups enforces the sibling-transition rule for split scenes
func (t *Timeline) validateGroups() error {
	groups := make(map[int][]int)
	var order []int
	for i, s := range t.Scenes {
		if s.SplitIndex == nil {
			continue
		}
		if _, ok := groups[s.SceneID]; !ok {
			order = append(order, s.SceneID)
		}
		groups[s.SceneID] = append(groups[s.SceneID], i)
	}

	for _, id := range order {
		members := groups[id]
		first, last := members[0], members[0]
		for _, i := range members {
			if t.Scenes[i].Split() < t.Scenes[first].Split() {
				first = i
			}
			if t.Scenes[i].Split() > t.Scenes[last].Split() {
				last = i
			}
		}

		carrier := -1
		for _, i := range members {
			if t.Scenes[i].Transition.IsNone() {
				continue
			}
			if carrier != -1 {
				return &InvariantError{Index: i, Reason: fmt.Sprintf("sceneId %d: siblings %d and %d both carry a transition", id, carrier, i)}
			}
			carrier = i
		}

		for _, i := range members {
			s := t.Scenes[i]
			switch {
			case i == carrier && s.Transition.IsMovement() && i != first:
				return &InvariantError{Index: i, Reason: fmt.Sprintf("sceneId %d: movement transition must be on the first sibling", id)}
			case i == carrier && !s.Transition.IsMovement() && i != last:
				return &InvariantError{Index: i, Reason: fmt.Sprintf("sceneId %d: transition must be on the last sibling", id)}
			case i != carrier && i != last && s.TransitionDuration != 0:
				return &InvariantError{Index: i, Reason: fmt.Sprintf("sceneId %d: sibling without transition has duration %v", id, s.TransitionDuration)}
			case i != carrier && i == last && carrier != -1 && s.TransitionDuration != 0:
				return &InvariantError{Index: i, Reason: fmt.Sprintf("sceneId %d: sibling without transition has duration %v", id, s.TransitionDuration)}
			}
		}

		if carrier != -1 && t.Scenes[carrier].Transition.IsMovement() {
			sum := 0.0
			for _, i := range members {
				sum += t.Scenes[i].EffectiveDuration()
			}
			if got := t.Scenes[carrier].TransitionDuration; math.Abs(got-sum) > groupTolerance {
				return &InvariantError{Index: carrier, Reason: fmt.Sprintf("sceneId %d: movement lasts %vs, group lasts %vs", id, got, sum)}
			}
		}
	}
	return nil
}

// groupTolerance absorbs float drift between a movement duration and the
// sum of its group
const groupTolerance = 1e-6

func nonNegativeFinite(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
