// Package testutil provides deterministic stand-ins for time, randomness
// and identifiers so playback runs are reproducible in tests and in the
// conformance harness.
package testutil

import (
	"sync"
	"time"

	"github.com/vcav-io/website/internal/clock"
)

// Epoch is the virtual time every VirtualHost starts at.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// VirtualHost is a clock.Host driven by hand.
//
// Time only moves when the test calls Advance, Step or RunUntil. Timers
// due at the same instant fire in the order they were scheduled, and a
// timer scheduled while another fires runs in the same Advance if it is
// due before the target time.
//
// Thread-safety: methods are guarded by a mutex, but callbacks run on the
// goroutine that advances the host, which mirrors the single-loop model.
type VirtualHost struct {
	mu     sync.Mutex
	now    time.Time
	next   clock.TimerID
	timers map[clock.TimerID]time.Time
	fns    map[clock.TimerID]func()
}

// NewVirtualHost creates a host at Epoch with no timers.
func NewVirtualHost() *VirtualHost {
	return &VirtualHost{
		now:    Epoch,
		timers: make(map[clock.TimerID]time.Time),
		fns:    make(map[clock.TimerID]func()),
	}
}

// Now returns the virtual time.
func (h *VirtualHost) Now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

// Since returns how much virtual time has passed since Epoch.
func (h *VirtualHost) Since() time.Duration {
	return h.Now().Sub(Epoch)
}

// After schedules fn at now+d.
func (h *VirtualHost) After(d time.Duration, fn func()) clock.TimerID {
	if d < 0 {
		d = 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	id := h.next
	h.timers[id] = h.now.Add(d)
	h.fns[id] = fn
	return id
}

// Cancel removes a pending timer.
func (h *VirtualHost) Cancel(id clock.TimerID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.timers, id)
	delete(h.fns, id)
}

// Pending returns the number of scheduled timers.
func (h *VirtualHost) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.timers)
}

// Advance moves virtual time forward by d, firing every timer that comes
// due on the way in (due time, id) order.
func (h *VirtualHost) Advance(d time.Duration) {
	h.mu.Lock()
	target := h.now.Add(d)
	h.mu.Unlock()

	for h.fireNext(target) {
	}

	h.mu.Lock()
	if target.After(h.now) {
		h.now = target
	}
	h.mu.Unlock()
}

// Skip moves virtual time forward without firing anything, as if the host
// had been suspended (a backgrounded tab, a sleeping laptop). Timers that
// became overdue fire on the next Advance or Step.
func (h *VirtualHost) Skip(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

// Step fires the earliest pending timer, moving time to its due instant if
// that is in the future. Returns false if nothing is scheduled.
func (h *VirtualHost) Step() bool {
	return h.fireNext(time.Time{})
}

// RunUntil steps timers until cond holds, nothing is scheduled, or more
// than limit of virtual time has passed. Reports whether cond held.
func (h *VirtualHost) RunUntil(cond func() bool, limit time.Duration) bool {
	deadline := h.Now().Add(limit)
	for !cond() {
		if !h.Now().Before(deadline) {
			return false
		}
		if !h.Step() {
			return cond()
		}
	}
	return true
}

// fireNext runs the earliest timer due at or before target. A zero target
// means no bound.
func (h *VirtualHost) fireNext(target time.Time) bool {
	h.mu.Lock()

	var (
		bestID  clock.TimerID
		bestDue time.Time
	)
	for id, due := range h.timers {
		if bestID == 0 || due.Before(bestDue) || (due.Equal(bestDue) && id < bestID) {
			bestID, bestDue = id, due
		}
	}
	if bestID == 0 || (!target.IsZero() && bestDue.After(target)) {
		h.mu.Unlock()
		return false
	}

	fn := h.fns[bestID]
	delete(h.timers, bestID)
	delete(h.fns, bestID)
	if bestDue.After(h.now) {
		h.now = bestDue
	}
	h.mu.Unlock()

	fn()
	return true
}
