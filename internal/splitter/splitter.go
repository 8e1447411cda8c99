// Package splitter explodes one authored scene into sentence-sized siblings.
package splitter

import (
	"errors"
	"strings"
	"unicode"

	"github.com/ivlev/scene2video/internal/timeline"
)

// MinSceneDuration is the floor applied to every sibling
const MinSceneDuration = 2.0

// ErrAlreadySplit is returned when a sibling still holds several sentences
var ErrAlreadySplit = errors.New("scene is already split")

// Result holds the per-sibling scripts and the scenes that replace the parent
type Result struct {
	SceneScripts   []string
	TimelineScenes []timeline.Scene
}

// Sentences splits text after '.', '!' and '?', keeping runs of terminators
// attached to their sentence. Fragments without letters or digits are merged
// into the previous sentence.
func Sentences(text string) []string {
	var (
		out []string
		cur strings.Builder
	)
	runes := []rune(text)
	flush := func() {
		frag := strings.TrimSpace(cur.String())
		cur.Reset()
		if frag == "" {
			return
		}
		if len(out) > 0 && !hasWordRune(frag) {
			out[len(out)-1] += frag
			return
		}
		out = append(out, frag)
	}

	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if !isTerminator(runes[i]) {
			continue
		}
		for i+1 < len(runes) && isTerminator(runes[i+1]) {
			i++
			cur.WriteRune(runes[i])
		}
		flush()
	}
	flush()
	return out
}

// Split replaces a scene by one sibling per sentence. resolved is the parent's
// effective duration; values <= 0 fall back to the text heuristic.
func Split(s timeline.Scene, resolved float64) (Result, error) {
	sentences := Sentences(s.Text.Content)
	if len(sentences) <= 1 {
		return Result{SceneScripts: sentences, TimelineScenes: []timeline.Scene{s.Clone()}}, nil
	}
	if s.SplitIndex != nil {
		return Result{}, ErrAlreadySplit
	}

	target := resolved
	if !timeline.PositiveFinite(target) {
		target = timeline.EstimateDuration(s.Text.Content)
	}
	durations := distribute(sentences, target)

	sum := 0.0
	for _, d := range durations {
		sum += d
	}

	scenes := make([]timeline.Scene, len(sentences))
	for i, sentence := range sentences {
		child := s.Clone()
		child.SplitIndex = timeline.IntPtr(i + 1)
		child.Duration = durations[i]
		child.NarrationDuration = 0
		child.Text = timeline.Text{Content: sentence}
		child.Transition = timeline.TransitionNone
		child.TransitionDuration = 0
		scenes[i] = child
	}

	if s.Transition.IsMovement() {
		scenes[0].Transition = s.Transition
		scenes[0].TransitionDuration = sum
	} else {
		last := len(scenes) - 1
		scenes[last].Transition = s.Transition
		scenes[last].TransitionDuration = s.TransitionDuration
	}

	return Result{SceneScripts: sentences, TimelineScenes: scenes}, nil
}

// distribute shares target proportionally to character counts. The floor may
// grow the sum above target.
func distribute(sentences []string, target float64) []float64 {
	counts := make([]int, len(sentences))
	total := 0
	for i, s := range sentences {
		counts[i] = timeline.CountChars(s)
		total += counts[i]
	}

	out := make([]float64, len(sentences))
	for i, c := range counts {
		d := target / float64(len(sentences))
		if total > 0 {
			d = target * float64(c) / float64(total)
		}
		if d < MinSceneDuration {
			d = MinSceneDuration
		}
		out[i] = d
	}
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
