package clock

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Loop is the production Host: a single-goroutine cooperative scheduler.
//
// Timers are backed by time.AfterFunc, but an expired timer only enqueues
// its callback; the callback itself runs inside Run. Code scheduled through
// the loop therefore never runs concurrently with other loop code.
//
// Thread-safety model:
//   - After, Cancel, Post, Now, Stop: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Cancel is synchronous with respect to Run: a canceled callback is
//     never invoked, even if its timer already fired
type Loop struct {
	queue  *taskQueue
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	live map[TimerID]*time.Timer
	next TimerID
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopLogger sets the logger used for loop lifecycle messages.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// NewLoop creates a loop. Call Run to start draining callbacks.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		queue:  newTaskQueue(),
		now:    time.Now,
		logger: slog.Default(),
		live:   make(map[TimerID]*time.Timer),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the current wall-clock time. time.Now carries a monotonic
// reading, so subtracting two results is immune to wall-clock jumps.
func (l *Loop) Now() time.Time {
	return l.now()
}

// After schedules fn to run on the loop once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) TimerID {
	if d < 0 {
		d = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	id := l.next
	l.live[id] = time.AfterFunc(d, func() {
		l.queue.Enqueue(task{id: id, fn: fn})
	})
	return id
}

// Cancel prevents the callback for id from running.
func (l *Loop) Cancel(id TimerID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.live[id]; ok {
		t.Stop()
		delete(l.live, id)
	}
}

// Post runs fn on the loop as soon as possible. Use it to call into code
// owned by the loop (engine controls) from other goroutines.
//
// Returns false if the loop has been stopped.
func (l *Loop) Post(fn func()) bool {
	return l.queue.Enqueue(task{fn: fn})
}

// Pending returns the number of timers that have neither fired nor been
// canceled.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}

// Run drains callbacks until ctx is cancelled or Stop is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("loop starting")

	for {
		if t, ok := l.queue.TryDequeue(); ok {
			l.run(t)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("loop stopping: context cancelled")
			l.shutdown()
			return ctx.Err()

		case <-l.queue.Wait():
			// The signal channel closes with the queue; an empty closed
			// queue means Stop was called.
			if l.queue.Len() == 0 && l.stopped() {
				l.logger.Debug("loop stopping: queue closed")
				l.shutdown()
				return nil
			}
		}
	}
}

// Stop closes the loop. Run returns after draining queued callbacks.
func (l *Loop) Stop() {
	l.queue.Close()
}

func (l *Loop) run(t task) {
	if t.id != 0 {
		l.mu.Lock()
		_, live := l.live[t.id]
		delete(l.live, t.id)
		l.mu.Unlock()

		if !live {
			return // canceled after its timer fired
		}
	}
	t.fn()
}

func (l *Loop) stopped() bool {
	l.queue.mu.Lock()
	defer l.queue.mu.Unlock()
	return l.queue.closed
}

func (l *Loop) shutdown() {
	l.queue.Close()

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, t := range l.live {
		t.Stop()
		delete(l.live, id)
	}
}
