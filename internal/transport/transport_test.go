package transport

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ivlev/scene2video/internal/logger"
	"github.com/ivlev/scene2video/internal/narration"
	"github.com/ivlev/scene2video/internal/segment"
	"github.com/ivlev/scene2video/internal/session"
	"github.com/ivlev/scene2video/internal/timeline"
)

type renderCall struct {
	scene  int
	offset float64
	opts   RenderOptions
}

type recorder struct {
	mu    sync.Mutex
	calls []renderCall
}

func (r *recorder) RenderAt(sceneIndex int, intraOffset float64, opts RenderOptions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, renderCall{sceneIndex, intraOffset, opts})
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) last() renderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

// countingSelector counts Locate calls
type countingSelector struct {
	segment.Selector
	locates int
}

func (c *countingSelector) Locate(spans []segment.Span, t float64) segment.Target {
	c.locates++
	return c.Selector.Locate(spans, t)
}

func scenes() []timeline.Scene {
	return []timeline.Scene{
		{SceneID: 1, Duration: 2, TransitionDuration: 0.5, Transition: timeline.TransitionFade, Voice: "aria", Text: timeline.Text{Content: "one"}},
		{SceneID: 2, Duration: 3, TransitionDuration: 0.5, Transition: timeline.TransitionFade, Voice: "aria", Text: timeline.Text{Content: "two"}},
		{SceneID: 3, Duration: 1, TransitionDuration: 0.5, Transition: timeline.TransitionFade, Voice: "aria", Text: timeline.Text{Content: "three"}},
	}
}

func newTransport(t *testing.T, sc []timeline.Scene) (*Transport, *session.TimelineSession, *narration.Cache, *recorder) {
	t.Helper()
	tl := timeline.New()
	tl.Scenes = sc
	cache := narration.NewCache()
	sess, err := session.New(tl, cache)
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	return New(sess, segment.Selector{}, cache.Lookup(), rec), sess, cache, rec
}

func TestPlayNothing(t *testing.T) {
	tr, _, _, rec := newTransport(t, nil)
	if err := tr.Play(); !errors.Is(err, ErrNothingToPlay) {
		t.Errorf("Expected ErrNothingToPlay, got %v", err)
	}
	if tr.State() != Stopped || rec.count() != 0 {
		t.Errorf("Play on empty timeline must be a no-op: %s, %d renders", tr.State(), rec.count())
	}

	zero := []timeline.Scene{{SceneID: 1, Duration: 0, TransitionDuration: 0}}
	tr, _, _, _ = newTransport(t, zero)
	if err := tr.Play(); !errors.Is(err, ErrNothingToPlay) {
		t.Errorf("Expected ErrNothingToPlay for zero total, got %v", err)
	}
}

func TestTickAdvancesAndStopsAtEnd(t *testing.T) {
	tr, _, _, rec := newTransport(t, scenes())
	if tr.TotalDuration() != 7.5 {
		t.Fatalf("Expected total 7.5, got %f", tr.TotalDuration())
	}
	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}

	tr.Tick(1)
	if tr.CurrentTime() != 1 || rec.last().scene != 0 {
		t.Errorf("After 1s: time %f scene %d", tr.CurrentTime(), rec.last().scene)
	}
	tr.Tick(1.25)
	if c := rec.last(); !c.opts.InTransitionWindow || c.scene != 0 {
		t.Errorf("At 2.25 expected transition window of scene 0, got %+v", c)
	}

	tr.Tick(100)
	if tr.State() != Stopped {
		t.Errorf("Expected stopped at end, got %s", tr.State())
	}
	if tr.CurrentTime() != tr.TotalDuration() {
		t.Errorf("Expected time clamped to total, got %f", tr.CurrentTime())
	}
	if rec.last().scene != 2 {
		t.Errorf("Expected last scene, got %d", rec.last().scene)
	}

	// Play at the end restarts
	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}
	if tr.CurrentTime() != 0 {
		t.Errorf("Expected restart from 0, got %f", tr.CurrentTime())
	}
}

func TestPauseFreezesClock(t *testing.T) {
	tr, _, _, rec := newTransport(t, scenes())
	tr.Play()
	tr.Tick(1)
	tr.Pause()
	n := rec.count()
	tr.Tick(1)
	if tr.CurrentTime() != 1 || rec.count() != n {
		t.Errorf("Paused transport moved: time %f, renders %d -> %d", tr.CurrentTime(), n, rec.count())
	}
	if tr.State() != Paused {
		t.Errorf("Expected paused, got %s", tr.State())
	}
}

func TestSeek(t *testing.T) {
	tr, _, _, rec := newTransport(t, scenes())
	tr.Play()

	tests := []struct {
		to, want float64
		scene    int
	}{
		{4, 4, 1},
		{-3, 0, 0},
		{50, 7.5, 2},
		{math.NaN(), 0, 0},
		{math.Inf(1), 0, 0},
	}
	for _, tt := range tests {
		tr.Seek(tt.to)
		if tr.CurrentTime() != tt.want {
			t.Errorf("Seek(%v): time %f, want %f", tt.to, tr.CurrentTime(), tt.want)
		}
		c := rec.last()
		if c.scene != tt.scene || !c.opts.SkipAnimation {
			t.Errorf("Seek(%v): render %+v, want hard cut to scene %d", tt.to, c, tt.scene)
		}
	}
	if tr.State() != Playing {
		t.Errorf("Seek must not change state, got %s", tr.State())
	}
}

func TestSpeedChange(t *testing.T) {
	tr, _, _, _ := newTransport(t, scenes())
	tr.Play()

	speeds := []float64{1, 2, 0.5, 1.5}
	want := 0.0
	for _, s := range speeds {
		if err := tr.SetSpeed(s); err != nil {
			t.Fatal(err)
		}
		tr.Tick(0.4)
		want += 0.4 * s
	}
	if math.Abs(tr.CurrentTime()-want) > 1e-9 {
		t.Errorf("Expected time %f, got %f", want, tr.CurrentTime())
	}

	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err := tr.SetSpeed(bad); !errors.Is(err, ErrInvalidSpeed) {
			t.Errorf("SetSpeed(%v): expected ErrInvalidSpeed, got %v", bad, err)
		}
	}
}

func TestSpeedChangeKeepsWallTime(t *testing.T) {
	tr, _, _, _ := newTransport(t, scenes())
	tr.Play()

	base := time.Unix(1000, 0)
	tr.Advance(base) // captures the anchor
	tr.Advance(base.Add(500 * time.Millisecond))
	if math.Abs(tr.CurrentTime()-0.5) > 1e-9 {
		t.Fatalf("Expected 0.5, got %f", tr.CurrentTime())
	}

	// 0.5s more at 1x before the change, then 0.5s at 2x
	if err := tr.SetSpeedAt(2, base.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if math.Abs(tr.CurrentTime()-1.0) > 1e-9 {
		t.Errorf("Time before the change counts at the old rate, got %f", tr.CurrentTime())
	}
	tr.Advance(base.Add(1500 * time.Millisecond))
	if math.Abs(tr.CurrentTime()-2.0) > 1e-9 {
		t.Errorf("Expected 2.0 after 0.5s at 2x, got %f", tr.CurrentTime())
	}

	// Without a wall time the anchor stays, so the next interval runs at the new rate
	if err := tr.SetSpeed(1); err != nil {
		t.Fatal(err)
	}
	tr.Advance(base.Add(1750 * time.Millisecond))
	if math.Abs(tr.CurrentTime()-2.25) > 1e-9 {
		t.Errorf("No wall interval may be dropped, got %f", tr.CurrentTime())
	}
}

func TestOneLocatePerTick(t *testing.T) {
	tl := timeline.New()
	tl.Scenes = scenes()
	sess, _ := session.New(tl, nil)
	sel := &countingSelector{}
	rec := &recorder{}
	tr := New(sess, sel, nil, rec)
	tr.Play()

	for i := 0; i < 5; i++ {
		sel.locates = 0
		before := rec.count()
		tr.Tick(0.3)
		if sel.locates != 1 || rec.count() != before+1 {
			t.Fatalf("Tick %d: %d locates, %d renders", i, sel.locates, rec.count()-before)
		}
	}
}

func TestResyncOnResolvedNarration(t *testing.T) {
	tr, sess, cache, rec := newTransport(t, scenes())
	tr.Play()
	tr.Tick(2.7) // Scene 1 starts at 2.5
	if rec.last().scene != 1 {
		t.Fatalf("Expected scene 1, got %d", rec.last().scene)
	}

	// Scene 0 narration comes back longer than its estimate
	first, _ := sess.Scene(0)
	key, _ := narration.KeyFor(first)
	entry := narration.Entry{DurationSeconds: 4}
	cache.Put(key, entry)
	if !sess.ApplyNarration(key, entry) {
		t.Fatal("Expected a new revision")
	}

	tr.Tick(0)
	c := rec.last()
	if c.scene != 0 || !c.opts.SkipAnimation {
		t.Errorf("Expected hard cut back into scene 0, got %+v", c)
	}
	if tr.TotalDuration() != 9.5 {
		t.Errorf("Expected total 9.5, got %f", tr.TotalDuration())
	}

	// The following tick renders normally
	tr.Tick(0.1)
	if rec.last().opts.SkipAnimation {
		t.Error("Only the corrective render is a hard cut")
	}
}

func TestSyncWhilePaused(t *testing.T) {
	tr, sess, _, rec := newTransport(t, scenes())
	tr.Seek(2.7)
	if rec.last().scene != 1 {
		t.Fatalf("Expected scene 1, got %d", rec.last().scene)
	}

	if tr.Sync() {
		t.Error("Sync without a new revision must not render")
	}
	if err := sess.SetDuration(0, 5); err != nil {
		t.Fatal(err)
	}
	if !tr.Sync() {
		t.Fatal("Expected re-render after the scene under the playhead changed")
	}
	if c := rec.last(); c.scene != 0 || !c.opts.SkipAnimation {
		t.Errorf("Expected hard cut to scene 0, got %+v", c)
	}

	// Shrinking everything clamps the playhead
	for i := 0; i < 3; i++ {
		sess.SetDuration(i, 0.1)
	}
	tr.Sync()
	if tr.CurrentTime() > tr.TotalDuration() {
		t.Errorf("Current time %f beyond total %f", tr.CurrentTime(), tr.TotalDuration())
	}
}

func TestLoop(t *testing.T) {
	tl := timeline.New()
	tl.FPS = 100
	tl.Scenes = []timeline.Scene{{SceneID: 1, Duration: 0.2, TransitionDuration: 0}}
	sess, _ := session.New(tl, nil)
	rec := &recorder{}
	tr := New(sess, segment.Selector{}, nil, rec)
	loop := NewLoop(tr, tl.FPS, sess.Changes(), logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()

	if err := loop.Play(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-loop.Ended():
	case <-time.After(5 * time.Second):
		t.Fatal("Playback never reached the end")
	}
	if st := loop.Status(); st.State != Stopped || st.CurrentTime != st.Total {
		t.Errorf("Unexpected end status: %+v", st)
	}

	if err := loop.SetSpeed(-1); !errors.Is(err, ErrInvalidSpeed) {
		t.Errorf("Expected ErrInvalidSpeed through the loop, got %v", err)
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v", err)
	}
	if err := loop.Pause(); !errors.Is(err, ErrLoopClosed) {
		t.Errorf("Expected ErrLoopClosed, got %v", err)
	}
}
