// Package clock provides the scheduling capability the playback engine
// runs on.
//
// ARCHITECTURE:
//
// Single Logical Thread:
// Every engine callback (drive-loop ticks, typing steps, control calls)
// runs on one goroutine. The Host interface is the only way the engine
// waits: it asks for a callback after a delay and may cancel it. There is
// no locking in the engine; the host serializes everything.
//
// Two hosts exist:
//   - Loop: production host backed by time.AfterFunc and a FIFO task queue
//     drained by Run on a single goroutine.
//   - testutil.VirtualHost: manual virtual clock for deterministic tests.
//
// CRITICAL: Cancel must be synchronous. Once Cancel returns, the canceled
// callback never runs, even if its timer already expired and the task is
// waiting in the queue.
package clock

import "time"

// TimerID identifies a scheduled callback. The zero value is never issued.
type TimerID uint64

// Host is the scheduling capability the engine needs.
type Host interface {
	// Now returns the host's current wall-clock reading.
	Now() time.Time

	// After schedules fn to run on the host's loop once d has elapsed.
	After(d time.Duration, fn func()) TimerID

	// Cancel prevents a scheduled callback from running. Unknown or already
	// fired IDs are ignored.
	Cancel(id TimerID)
}
