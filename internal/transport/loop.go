package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ivlev/scene2video/internal/logger"
)

// ErrLoopClosed is returned by commands sent after Run has returned
var ErrLoopClosed = errors.New("playback loop is not running")

type command struct {
	apply func(t *Transport) error
	reply chan error
}

// Loop is the only goroutine touching its Transport. Control calls are
// serialized through a channel; a ticker at the timeline frame rate drives
// Advance while playing.
type Loop struct {
	t       *Transport
	fps     int
	changes <-chan struct{}
	log     *logger.Logger

	cmds   chan command
	done   chan struct{}
	ended  chan struct{}
	status atomic.Pointer[Status]
}

// NewLoop wraps t. changes is the revision notification channel of the
// timeline source; it may be nil.
func NewLoop(t *Transport, fps int, changes <-chan struct{}, log *logger.Logger) *Loop {
	if fps <= 0 {
		fps = 30
	}
	if log == nil {
		log = logger.Default()
	}
	l := &Loop{
		t:       t,
		fps:     fps,
		changes: changes,
		log:     log.With("transport"),
		cmds:    make(chan command),
		done:    make(chan struct{}),
		ended:   make(chan struct{}, 1),
	}
	l.publish()
	return l
}

// Run drives the transport until ctx is done
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	ticker := time.NewTicker(time.Second / time.Duration(l.fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cmd := <-l.cmds:
			err := cmd.apply(l.t)
			l.publish()
			cmd.reply <- err

		case now := <-ticker.C:
			if l.t.State() != Playing {
				continue
			}
			l.t.Advance(now)
			l.publish()
			if l.t.State() == Stopped {
				l.log.Debug("end reached at %.2fs", l.t.CurrentTime())
				select {
				case l.ended <- struct{}{}:
				default:
				}
			}

		case <-l.changes:
			// While playing the next tick picks the revision up
			if l.t.State() != Playing && l.t.Sync() {
				l.log.Debug("re-synced to scene %d", l.t.Status().SceneIndex)
			}
			l.publish()
		}
	}
}

// Ended signals each time playback runs to the end of the timeline
func (l *Loop) Ended() <-chan struct{} {
	return l.ended
}

// Status returns the state as of the last processed event
func (l *Loop) Status() Status {
	return *l.status.Load()
}

// Play starts playback
func (l *Loop) Play() error {
	return l.do(func(t *Transport) error { return t.Play() })
}

// Pause freezes playback
func (l *Loop) Pause() error {
	return l.do(func(t *Transport) error { t.Pause(); return nil })
}

// Stop halts playback and rewinds
func (l *Loop) Stop() error {
	return l.do(func(t *Transport) error { t.Stop(); return nil })
}

// Seek jumps to an absolute time
func (l *Loop) Seek(seconds float64) error {
	return l.do(func(t *Transport) error { t.Seek(seconds); return nil })
}

// SetSpeed changes the playback rate
func (l *Loop) SetSpeed(speed float64) error {
	return l.do(func(t *Transport) error { return t.SetSpeedAt(speed, time.Now()) })
}

func (l *Loop) do(fn func(t *Transport) error) error {
	cmd := command{apply: fn, reply: make(chan error, 1)}
	select {
	case l.cmds <- cmd:
	case <-l.done:
		return ErrLoopClosed
	}
	return <-cmd.reply
}

func (l *Loop) publish() {
	st := l.t.Status()
	l.status.Store(&st)
}
