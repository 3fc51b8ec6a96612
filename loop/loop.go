// Package loop is a single threaded cooperative event loop with a microtask
// queue and a deadline ordered timer queue.
//
// Everything that touches the DOM or reactive state runs on the loop's
// logical thread. The loop never starts goroutines of its own; callers drive
// it with RunMicrotasks, Tick or Drain.
package loop

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"time"
)

var (
	// ErrLoopTerminated is returned when work is submitted to a closed loop.
	ErrLoopTerminated = errors.New("loop: loop has been terminated")

	// ErrReentrantDrain is returned when Drain is called from inside a task.
	ErrReentrantDrain = errors.New("loop: cannot drain from within the loop")
)

// ErrorHandler receives errors returned by macrotasks that nobody handled.
type ErrorHandler func(err error)

type Option func(*Loop)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

func WithErrorHandler(fn ErrorHandler) Option {
	return func(l *Loop) {
		l.onError = fn
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		l.now = now
	}
}

type Loop struct {
	logger  *slog.Logger
	onError ErrorHandler
	now     func() time.Time

	microtasks []func()
	timers     timerHeap
	timerSeq   uint64
	cancelled  map[uint64]struct{}

	errs     []error
	running  bool
	draining bool
	closed   bool
}

func New(opts ...Option) *Loop {
	l := &Loop{
		logger:    slog.Default(),
		now:       time.Now,
		cancelled: map[uint64]struct{}{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// QueueMicrotask appends fn to the microtask queue.
func (l *Loop) QueueMicrotask(fn func()) {
	if l.closed {
		return
	}
	l.microtasks = append(l.microtasks, fn)
}

// SetTimeout schedules fn as a macrotask after d. A returned error is
// reported as unhandled.
func (l *Loop) SetTimeout(fn func() error, d time.Duration) uint64 {
	if l.closed {
		return 0
	}
	l.timerSeq++
	heap.Push(&l.timers, &timer{
		id:       l.timerSeq,
		deadline: l.now().Add(d),
		fn:       fn,
	})
	return l.timerSeq
}

func (l *Loop) ClearTimeout(id uint64) {
	for _, t := range l.timers {
		if t.id == id {
			l.cancelled[id] = struct{}{}
			return
		}
	}
}

// RunMicrotasks drains the microtask queue, including microtasks queued while
// draining. It reports whether anything ran.
func (l *Loop) RunMicrotasks() bool {
	if l.running {
		return false
	}
	l.running = true
	defer func() { l.running = false }()

	ran := false
	for len(l.microtasks) > 0 {
		task := l.microtasks[0]
		l.microtasks[0] = nil
		l.microtasks = l.microtasks[1:]
		task()
		ran = true
	}
	l.microtasks = nil
	return ran
}

// Tick runs microtasks, then at most one due macrotask, then microtasks again.
func (l *Loop) Tick() bool {
	ran := l.RunMicrotasks()
	t := l.nextDue()
	if t == nil {
		return ran
	}
	l.runTimer(t)
	l.RunMicrotasks()
	return true
}

// Drain runs the loop until no microtasks or timers remain. Future timers are
// waited for in real time.
func (l *Loop) Drain(ctx context.Context) error {
	if l.draining || l.running {
		return ErrReentrantDrain
	}
	l.draining = true
	defer func() { l.draining = false }()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.RunMicrotasks()
		l.dropCancelled()
		if len(l.timers) == 0 {
			return nil
		}
		if t := l.nextDue(); t != nil {
			l.runTimer(t)
			continue
		}
		wait := l.timers[0].deadline.Sub(l.now())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Idle reports whether there is nothing queued.
func (l *Loop) Idle() bool {
	l.dropCancelled()
	return len(l.microtasks) == 0 && len(l.timers) == 0
}

// Errors returns every unhandled macrotask error seen so far.
func (l *Loop) Errors() []error {
	return l.errs
}

func (l *Loop) Close() {
	l.closed = true
	l.microtasks = nil
	l.timers = nil
}

func (l *Loop) nextDue() *timer {
	l.dropCancelled()
	if len(l.timers) == 0 {
		return nil
	}
	if l.timers[0].deadline.After(l.now()) {
		return nil
	}
	return heap.Pop(&l.timers).(*timer)
}

func (l *Loop) dropCancelled() {
	for len(l.timers) > 0 {
		if _, ok := l.cancelled[l.timers[0].id]; !ok {
			return
		}
		t := heap.Pop(&l.timers).(*timer)
		delete(l.cancelled, t.id)
	}
}

func (l *Loop) runTimer(t *timer) {
	if err := t.fn(); err != nil {
		l.errs = append(l.errs, err)
		if l.onError != nil {
			l.onError(err)
			return
		}
		l.logger.Error("unhandled error", "err", err)
	}
}

type timer struct {
	id       uint64
	deadline time.Time
	fn       func() error
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].id < h[j].id
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timer)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
