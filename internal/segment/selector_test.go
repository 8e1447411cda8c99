package segment

import (
	"math"
	"testing"

	"github.com/ivlev/scene2video/internal/timeline"
)

func sampleSpans() []Span {
	return []Span{
		{Duration: 2, TransitionDuration: 0.5},
		{Duration: 3, TransitionDuration: 0.5},
		{Duration: 1, TransitionDuration: 0.5},
	}
}

func TestStartTimeRoundTrip(t *testing.T) {
	spans := sampleSpans()
	for i := 0; i < len(spans); i++ {
		diff := StartTimeOf(spans, i+1) - StartTimeOf(spans, i)
		if math.Abs(diff-spans[i].Length()) > 1e-9 {
			t.Errorf("Scene %d: start diff %f, expected %f", i, diff, spans[i].Length())
		}
		// Every scene start must locate to that scene
		tg := Locate(spans, StartTimeOf(spans, i))
		if tg.SceneIndex != i || tg.IntraOffset != 0 {
			t.Errorf("Locate(start of %d) = %+v", i, tg)
		}
	}
	if total := TotalDuration(spans); total != 8 {
		t.Errorf("Expected total 8, got %f", total)
	}
}

func TestLocateEnd(t *testing.T) {
	spans := sampleSpans()
	total := TotalDuration(spans)

	tg := Locate(spans, total-1e-6)
	if tg.SceneIndex != 2 || tg.EndReached {
		t.Errorf("Just before end: expected last scene without end flag, got %+v", tg)
	}

	for _, past := range []float64{total, total + 0.1, total + 1000} {
		tg := Locate(spans, past)
		if tg.SceneIndex != 2 || !tg.EndReached {
			t.Errorf("Locate(%f): expected last scene with end reached, got %+v", past, tg)
		}
		if tg.IntraOffset != spans[2].Length() {
			t.Errorf("Locate(%f): expected offset %f, got %f", past, spans[2].Length(), tg.IntraOffset)
		}
	}
}

func TestLocateTransitionWindow(t *testing.T) {
	spans := sampleSpans()

	tests := []struct {
		time      float64
		scene     int
		inWindow  bool
		wantShift float64
	}{
		{0.0, 0, false, 0},
		{1.9, 0, false, 1.9},
		{2.25, 0, true, 2.25},
		{2.5, 1, false, 0},
		{5.6, 1, true, 3.1},
		{6.0, 2, false, 0},
	}

	for _, tt := range tests {
		tg := Locate(spans, tt.time)
		if tg.SceneIndex != tt.scene || tg.InTransitionWindow != tt.inWindow {
			t.Errorf("Locate(%.2f) = %+v, want scene %d window %v", tt.time, tg, tt.scene, tt.inWindow)
		}
		if math.Abs(tg.IntraOffset-tt.wantShift) > 1e-9 {
			t.Errorf("Locate(%.2f) offset = %f, want %f", tt.time, tg.IntraOffset, tt.wantShift)
		}
		if tg.InTransitionWindow && (tg.TransitionProgress <= 0 || tg.TransitionProgress > 1) {
			t.Errorf("Locate(%.2f) progress out of range: %f", tt.time, tg.TransitionProgress)
		}
	}

	mid := Locate(spans, 2.25)
	if math.Abs(mid.TransitionProgress-0.5) > 1e-9 {
		t.Errorf("Expected eased progress 0.5 at window midpoint, got %f", mid.TransitionProgress)
	}
}

func TestLocateIsStateless(t *testing.T) {
	spans := sampleSpans()
	first := Locate(spans, 4.2)
	for _, other := range []float64{7.9, 0, 100, 1.1} {
		Locate(spans, other)
	}
	if again := Locate(spans, 4.2); again != first {
		t.Errorf("Locate not deterministic: %+v vs %+v", first, again)
	}
}

func TestLocateDegenerate(t *testing.T) {
	if tg := Locate(nil, 3); tg.SceneIndex != -1 || !tg.EndReached {
		t.Errorf("Empty layout: got %+v", tg)
	}

	spans := sampleSpans()
	for _, bad := range []float64{-5, math.NaN(), math.Inf(-1)} {
		if tg := Locate(spans, bad); tg.SceneIndex != 0 || tg.IntraOffset != 0 {
			t.Errorf("Locate(%v) = %+v, want scene 0 at offset 0", bad, tg)
		}
	}
}

func TestClampPlaybackTime(t *testing.T) {
	tests := []struct {
		t, total, want float64
	}{
		{-1, 5, 0},
		{10, 5, 5},
		{math.NaN(), 5, 0},
		{2, 0, 0},
		{math.Inf(1), 5, 0},
		{3, 5, 3},
	}
	for _, tt := range tests {
		if got := ClampPlaybackTime(tt.t, tt.total); got != tt.want {
			t.Errorf("ClampPlaybackTime(%v, %v) = %v, want %v", tt.t, tt.total, got, tt.want)
		}
	}
}

func TestSpans(t *testing.T) {
	scenes := []timeline.Scene{
		{SceneID: 1, Duration: 4, TransitionDuration: 0.5},
		{SceneID: 2, Duration: 2, NarrationDuration: 3.5, TransitionDuration: 0.5},
	}
	spans := Spans(scenes, timeline.Scene.EffectiveDuration)
	if spans[0].Duration != 4 || spans[1].Duration != 3.5 {
		t.Errorf("Unexpected spans: %+v", spans)
	}

	broken := Spans(scenes, func(timeline.Scene) float64 { return math.NaN() })
	if broken[0].Duration != 0 {
		t.Errorf("NaN durations must collapse to 0, got %f", broken[0].Duration)
	}
}
