package loop

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "popengine/pkg/logx"
)

var ErrStopped = errors.New("event loop stopped")

// EventLoop runs callbacks one at a time on the goroutine that calls Run.
//
// The queue is unbounded so Post never blocks a producer (timer goroutines,
// config watchers). A panicking callback is logged and the loop keeps going.
type EventLoop struct {
	log logx.Logger

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	running atomic.Bool
}

func NewEventLoop(log logx.Logger) *EventLoop {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &EventLoop{log: log, wake: make(chan struct{}, 1)}
}

func (l *EventLoop) Now() time.Time { return time.Now() }

func (l *EventLoop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *EventLoop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &realTimer{}
	if d <= 0 {
		l.Post(func() { t.fire(fn) })
		return t
	}
	t.t = time.AfterFunc(d, func() {
		l.Post(func() { t.fire(fn) })
	})
	return t
}

// Run drains the queue until ctx is done. It returns ErrStopped when called
// on a loop that is already running.
func (l *EventLoop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("run: %w", ErrStopped)
	}
	defer l.running.Store(false)

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			if ctx.Err() != nil {
				return nil
			}
			l.runOne(fn)
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
	}
}

func (l *EventLoop) runOne(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("loop callback panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	fn()
}

// realTimer is stopped from the loop goroutine; the flag is checked again on
// the loop so a callback already queued by time.AfterFunc never runs.
type realTimer struct {
	t       *time.Timer
	stopped atomic.Bool
	fired   atomic.Bool
}

func (t *realTimer) fire(fn func()) {
	if t.stopped.Load() {
		return
	}
	t.fired.Store(true)
	fn()
}

func (t *realTimer) Stop() bool {
	if t.fired.Load() {
		return false
	}
	if !t.stopped.CompareAndSwap(false, true) {
		return false
	}
	if t.t != nil {
		t.t.Stop()
	}
	return true
}
