// Package session owns the editable timeline. Every mutation goes through a
// narrow setter that invalidates stale narration, enforces the timeline
// invariants and publishes a new revision.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ivlev/scene2video/internal/narration"
	"github.com/ivlev/scene2video/internal/splitter"
	"github.com/ivlev/scene2video/internal/timeline"
)

// ErrSceneIndex is returned for indices outside the timeline
var ErrSceneIndex = errors.New("scene index out of range")

// TimelineSession is the single owner of a timeline. Revisions are immutable:
// setters work on a copy and swap it in, so a Snapshot may be read without
// holding any lock.
type TimelineSession struct {
	ID string

	mu       sync.RWMutex
	tl       *timeline.Timeline
	revision uint64
	cache    *narration.Cache
	notify   chan struct{}

	// invalidations queued by the running mutation, guarded by mu
	pending []invalidation
}

type invalidation struct {
	sceneID int
	split   *int
}

// New validates tl and wraps it in a session. cache may be nil.
func New(tl *timeline.Timeline, cache *narration.Cache) (*TimelineSession, error) {
	if tl == nil {
		tl = timeline.New()
	}
	if err := tl.Validate(); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if cache == nil {
		cache = narration.NewCache()
	}
	return &TimelineSession{
		ID:       uuid.NewString(),
		tl:       tl.Clone(),
		revision: 1,
		cache:    cache,
		notify:   make(chan struct{}, 1),
	}, nil
}

// Snapshot returns the current revision. Callers must not mutate it.
func (s *TimelineSession) Snapshot() (*timeline.Timeline, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tl, s.revision
}

// Revision returns the current revision number
func (s *TimelineSession) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Changes signals after every new revision. Signals coalesce.
func (s *TimelineSession) Changes() <-chan struct{} {
	return s.notify
}

// Cache returns the narration cache the session invalidates
func (s *TimelineSession) Cache() *narration.Cache {
	return s.cache
}

// Scene returns a copy of the scene at index
func (s *TimelineSession) Scene(index int) (timeline.Scene, error) {
	tl, _ := s.Snapshot()
	if index < 0 || index >= len(tl.Scenes) {
		return timeline.Scene{}, fmt.Errorf("%w: %d", ErrSceneIndex, index)
	}
	return tl.Scenes[index].Clone(), nil
}

// Save persists the current revision
func (s *TimelineSession) Save(path string) error {
	tl, _ := s.Snapshot()
	return timeline.WriteTimeline(tl, path)
}

// SetText replaces the narrated text of a scene and re-estimates its nominal duration
func (s *TimelineSession) SetText(index int, text timeline.Text) error {
	return s.mutateScene(index, func(tl *timeline.Timeline, sc *timeline.Scene) error {
		s.invalidateScene(*sc)
		sc.Text = text
		sc.Duration = timeline.EstimateDuration(text.Content)
		sc.NarrationDuration = 0
		syncMovement(tl, sc.SceneID)
		return nil
	})
}

// SetVoice changes the narration voice of a scene
func (s *TimelineSession) SetVoice(index int, voice string) error {
	return s.mutateScene(index, func(tl *timeline.Timeline, sc *timeline.Scene) error {
		if sc.Voice == voice {
			return nil
		}
		s.invalidateScene(*sc)
		sc.Voice = voice
		sc.NarrationDuration = 0
		syncMovement(tl, sc.SceneID)
		return nil
	})
}

// SetTransition changes the outgoing transition of a scene. A movement
// transition on a split group head gets the group length as its duration.
func (s *TimelineSession) SetTransition(index int, tr timeline.Transition, duration float64) error {
	return s.mutateScene(index, func(tl *timeline.Timeline, sc *timeline.Scene) error {
		sc.Transition = tr
		sc.TransitionDuration = duration
		if tr.IsNone() && sc.SplitIndex != nil {
			sc.TransitionDuration = 0
		}
		syncMovement(tl, sc.SceneID)
		return nil
	})
}

// SetDuration changes the nominal duration of a scene
func (s *TimelineSession) SetDuration(index int, seconds float64) error {
	return s.mutateScene(index, func(tl *timeline.Timeline, sc *timeline.Scene) error {
		sc.Duration = seconds
		syncMovement(tl, sc.SceneID)
		return nil
	})
}

// SetPlaybackSpeed changes the persisted playback speed
func (s *TimelineSession) SetPlaybackSpeed(speed float64) error {
	return s.mutate(func(tl *timeline.Timeline) error {
		tl.PlaybackSpeed = speed
		return nil
	})
}

// SetBackground replaces the looping background track; nil removes it
func (s *TimelineSession) SetBackground(bg *timeline.Background) error {
	return s.mutate(func(tl *timeline.Timeline) error {
		if bg == nil {
			tl.Background = nil
			return nil
		}
		c := *bg
		tl.Background = &c
		return nil
	})
}

// Insert adds a scene at index. A zero SceneID gets a fresh identity.
func (s *TimelineSession) Insert(index int, sc timeline.Scene) error {
	return s.mutate(func(tl *timeline.Timeline) error {
		if index < 0 || index > len(tl.Scenes) {
			return fmt.Errorf("%w: %d", ErrSceneIndex, index)
		}
		c := sc.Clone()
		if c.SceneID == 0 {
			c.SceneID = tl.NextSceneID()
		}
		s.invalidateScene(c)
		tl.Scenes = append(tl.Scenes[:index], append([]timeline.Scene{c}, tl.Scenes[index:]...)...)
		syncMovement(tl, c.SceneID)
		return nil
	})
}

// Remove deletes the scene at index
func (s *TimelineSession) Remove(index int) error {
	return s.mutate(func(tl *timeline.Timeline) error {
		if index < 0 || index >= len(tl.Scenes) {
			return fmt.Errorf("%w: %d", ErrSceneIndex, index)
		}
		removed := tl.Scenes[index]
		tl.Scenes = append(tl.Scenes[:index], tl.Scenes[index+1:]...)
		s.invalidateScene(removed)
		syncMovement(tl, removed.SceneID)
		return nil
	})
}

// Duplicate copies the scene at index right after it. The copy gets a fresh
// identity and no narration; it is never part of the source's split group.
func (s *TimelineSession) Duplicate(index int) (int, error) {
	var newID int
	err := s.mutate(func(tl *timeline.Timeline) error {
		if index < 0 || index >= len(tl.Scenes) {
			return fmt.Errorf("%w: %d", ErrSceneIndex, index)
		}
		c := tl.Scenes[index].Clone()
		c.SceneID = tl.NextSceneID()
		c.SplitIndex = nil
		c.NarrationDuration = 0
		s.invalidateGroup(c.SceneID)
		newID = c.SceneID

		tl.Scenes = append(tl.Scenes[:index+1], append([]timeline.Scene{c}, tl.Scenes[index+1:]...)...)
		return nil
	})
	return newID, err
}

// Split replaces the scene at index by its sentence siblings and returns how
// many scenes now stand in its place.
func (s *TimelineSession) Split(index int) (int, error) {
	var n int
	err := s.mutate(func(tl *timeline.Timeline) error {
		if index < 0 || index >= len(tl.Scenes) {
			return fmt.Errorf("%w: %d", ErrSceneIndex, index)
		}
		sc := tl.Scenes[index]
		res, err := splitter.Split(sc, narration.Effective(s.cache.Lookup())(sc))
		if err != nil {
			return fmt.Errorf("split scene %d: %w", index, err)
		}
		n = len(res.TimelineScenes)
		if n == 1 {
			return errUnchanged
		}

		s.invalidateGroup(sc.SceneID)
		tail := append([]timeline.Scene{}, tl.Scenes[index+1:]...)
		tl.Scenes = append(append(tl.Scenes[:index], res.TimelineScenes...), tail...)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return n, nil
	}
	return n, err
}

// ApplyNarration records a resolved narration length on the scene it belongs
// to. Results whose key no longer matches the scene are ignored. Reports
// whether a new revision was published.
func (s *TimelineSession) ApplyNarration(key narration.Key, entry narration.Entry) bool {
	if !timeline.PositiveFinite(entry.DurationSeconds) {
		return false
	}
	applied := false
	err := s.mutate(func(tl *timeline.Timeline) error {
		for i := range tl.Scenes {
			sc := &tl.Scenes[i]
			if k, ok := narration.KeyFor(*sc); !ok || k != key {
				continue
			}
			if sc.NarrationDuration == entry.DurationSeconds {
				return errUnchanged
			}
			sc.NarrationDuration = entry.DurationSeconds
			syncMovement(tl, sc.SceneID)
			applied = true
			return nil
		}
		return errUnchanged
	})
	return err == nil && applied
}

var errUnchanged = errors.New("unchanged")

func (s *TimelineSession) mutateScene(index int, fn func(tl *timeline.Timeline, sc *timeline.Scene) error) error {
	return s.mutate(func(tl *timeline.Timeline) error {
		if index < 0 || index >= len(tl.Scenes) {
			return fmt.Errorf("%w: %d", ErrSceneIndex, index)
		}
		return fn(tl, &tl.Scenes[index])
	})
}

// mutate applies fn to a copy of the current revision and publishes it if the
// result is valid. Invalidations queued by fn are applied only once the copy
// validates, and before the swap, so no synthesis triggered afterwards can
// race with them and a rejected mutation leaves the cache untouched.
func (s *TimelineSession) mutate(fn func(tl *timeline.Timeline) error) error {
	s.mu.Lock()
	s.pending = s.pending[:0]
	next := s.tl.Clone()
	err := fn(next)
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		s.pending = s.pending[:0]
		s.mu.Unlock()
		return err
	}
	for _, inv := range s.pending {
		if inv.split != nil {
			s.cache.InvalidateSplit(inv.sceneID, *inv.split)
		} else {
			s.cache.Invalidate(inv.sceneID)
		}
	}
	s.pending = s.pending[:0]
	s.tl = next
	s.revision++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// invalidateScene queues the cache entries of sc. Must be called from
// inside a mutation.
func (s *TimelineSession) invalidateScene(sc timeline.Scene) {
	inv := invalidation{sceneID: sc.SceneID}
	if sc.SplitIndex != nil {
		inv.split = timeline.IntPtr(*sc.SplitIndex)
	}
	s.pending = append(s.pending, inv)
}

func (s *TimelineSession) invalidateGroup(sceneID int) {
	s.pending = append(s.pending, invalidation{sceneID: sceneID})
}

// syncMovement keeps a movement transition on a split group head as long as
// the whole group.
func syncMovement(tl *timeline.Timeline, sceneID int) {
	members := tl.Group(sceneID)
	head := -1
	sum := 0.0
	for _, i := range members {
		sc := tl.Scenes[i]
		if sc.SplitIndex == nil {
			continue
		}
		sum += sc.EffectiveDuration()
		if head == -1 || sc.Split() < tl.Scenes[head].Split() {
			head = i
		}
	}
	if head != -1 && tl.Scenes[head].Transition.IsMovement() {
		tl.Scenes[head].TransitionDuration = sum
	}
}
