package timeline

import (
	"encoding/json"
	"math"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// DefaultTransitionDuration is applied to scenes whose persisted form omits transitionDuration
const DefaultTransitionDuration = 0.5

// Nominal duration heuristic
const (
	CharsPerSecond     = 14.0
	MinNominalDuration = 1.0
)

// Transition is the visual effect played when leaving a scene
type Transition string

const (
	TransitionNone       Transition = "none"
	TransitionFade       Transition = "fade"
	TransitionSlideLeft  Transition = "slide-left"
	TransitionSlideRight Transition = "slide-right"
	TransitionSlideUp    Transition = "slide-up"
	TransitionSlideDown  Transition = "slide-down"
	TransitionZoomIn     Transition = "zoom-in"
	TransitionZoomOut    Transition = "zoom-out"
	TransitionRotate     Transition = "rotate"
	TransitionBlur       Transition = "blur"
	TransitionGlitch     Transition = "glitch"
	TransitionRipple     Transition = "ripple"
	TransitionCircle     Transition = "circle"
)

var knownTransitions = map[Transition]bool{
	TransitionNone: true, TransitionFade: true,
	TransitionSlideLeft: true, TransitionSlideRight: true, TransitionSlideUp: true, TransitionSlideDown: true,
	TransitionZoomIn: true, TransitionZoomOut: true,
	TransitionRotate: true, TransitionBlur: true, TransitionGlitch: true, TransitionRipple: true, TransitionCircle: true,
}

// Valid reports whether t is one of the supported transitions. The empty value counts as none.
func (t Transition) Valid() bool {
	return t == "" || knownTransitions[t]
}

// IsNone reports whether t plays no effect
func (t Transition) IsNone() bool {
	return t == "" || t == TransitionNone
}

// IsMovement reports whether t belongs to the slide/zoom family. Movement transitions
// span a whole split group instead of acting at its trailing boundary.
func (t Transition) IsMovement() bool {
	switch t {
	case TransitionSlideLeft, TransitionSlideRight, TransitionSlideUp, TransitionSlideDown,
		TransitionZoomIn, TransitionZoomOut:
		return true
	}
	return false
}

// Text is the narrated content of a scene
type Text struct {
	Content string `yaml:"content" json:"content"`
	Markup  string `yaml:"markup,omitempty" json:"markup,omitempty"` // Optional SSML-like markup sent to the synthesizer
}

// VideoSelection is a clipped range of a video source
type VideoSelection struct {
	URL              string  `yaml:"url" json:"url"`
	SelectionStart   float64 `yaml:"selectionStart" json:"selectionStart"`
	SelectionEnd     float64 `yaml:"selectionEnd" json:"selectionEnd"`
	OriginalDuration float64 `yaml:"originalDuration,omitempty" json:"originalDuration,omitempty"`
}

// Scene is one visual beat of the video
type Scene struct {
	SceneID            int             `yaml:"sceneId" json:"sceneId"`
	SplitIndex         *int            `yaml:"splitIndex,omitempty" json:"splitIndex,omitempty"`
	Duration           float64         `yaml:"duration" json:"duration"`                           // Nominal duration in seconds
	NarrationDuration  float64         `yaml:"ttsDuration,omitempty" json:"ttsDuration,omitempty"` // Measured narration length, 0 if unresolved
	Transition         Transition      `yaml:"transition" json:"transition"`
	TransitionDuration float64         `yaml:"transitionDuration" json:"transitionDuration"`
	Voice              string          `yaml:"voiceTemplate,omitempty" json:"voiceTemplate,omitempty"`
	Text               Text            `yaml:"text" json:"text"`
	Image              string          `yaml:"image,omitempty" json:"image,omitempty"`
	Video              *VideoSelection `yaml:"video,omitempty" json:"video,omitempty"`
}

// UnmarshalYAML applies DefaultTransitionDuration when the field is absent
func (s *Scene) UnmarshalYAML(value *yaml.Node) error {
	type plain Scene
	p := plain{TransitionDuration: DefaultTransitionDuration}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*s = Scene(p)
	return nil
}

// UnmarshalJSON applies DefaultTransitionDuration when the field is absent
func (s *Scene) UnmarshalJSON(data []byte) error {
	type plain Scene
	p := plain{TransitionDuration: DefaultTransitionDuration}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Scene(p)
	return nil
}

// Split returns the 1-based sibling index, 0 when the scene is not split
func (s Scene) Split() int {
	if s.SplitIndex == nil {
		return 0
	}
	return *s.SplitIndex
}

// EffectiveDuration prefers the measured narration length over the nominal estimate
func (s Scene) EffectiveDuration() float64 {
	if PositiveFinite(s.NarrationDuration) {
		return s.NarrationDuration
	}
	return s.Duration
}

// HasMedia reports whether the scene references an image or a video
func (s Scene) HasMedia() bool {
	if strings.TrimSpace(s.Image) != "" {
		return true
	}
	return s.Video != nil && strings.TrimSpace(s.Video.URL) != ""
}

// Range returns the media range that the scene plays. Images without a
// selection span [0, nominal duration].
func (s Scene) Range() (start, end float64) {
	if s.Video != nil && strings.TrimSpace(s.Video.URL) != "" {
		return s.Video.SelectionStart, s.Video.SelectionEnd
	}
	return 0, s.Duration
}

// Clone returns a deep copy
func (s Scene) Clone() Scene {
	c := s
	if s.SplitIndex != nil {
		idx := *s.SplitIndex
		c.SplitIndex = &idx
	}
	if s.Video != nil {
		v := *s.Video
		c.Video = &v
	}
	return c
}

// RenderedMarkup is the exact text sent to the synthesizer
func RenderedMarkup(s Scene) string {
	if m := strings.TrimSpace(s.Text.Markup); m != "" {
		return m
	}
	return strings.TrimSpace(s.Text.Content)
}

// EstimateDuration derives a nominal duration from text length
func EstimateDuration(text string) float64 {
	d := float64(CountChars(text)) / CharsPerSecond
	if d < MinNominalDuration {
		return MinNominalDuration
	}
	return d
}

// CountChars counts non-whitespace runes
func CountChars(text string) int {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// PositiveFinite reports whether v is a usable duration
func PositiveFinite(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IntPtr is a small helper for SplitIndex literals
func IntPtr(v int) *int {
	return &v
}
