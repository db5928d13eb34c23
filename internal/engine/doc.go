// Package engine implements the scripted demo playback engine.
//
// The engine walks a schedule built from a scenario and fires each entry
// once its offset is reached on a pausable master clock, calling into a
// Renderer for every visible effect. It owns one typing session per chat
// message in flight, each revealing text on its own cadence.
//
// ARCHITECTURE:
//
// Single Logical Thread:
// All engine methods and every callback the engine schedules run on the
// goroutine that drives the clock.Host (clock.Loop.Run in production,
// the test itself with testutil.VirtualHost). There is no locking in this
// package. Callers on other goroutines must go through clock.Loop.Post.
//
// Lifecycle:
//
//	idle --Play--> playing --Pause--> paused --Play--> playing
//	playing --(elapsed >= total)--> complete (terminal)
//	any --Reset--> idle
//
// Master Clock:
// While playing, elapsed = host.Now() - origin. Resuming from pause moves
// origin so elapsed continues from the paused value regardless of how much
// wall time passed in between.
//
// Micro-freeze:
// An error card holds elapsed constant for Config.FreezeDwell. The drive
// loop keeps ticking (typing continues, progress is reported) but nothing
// new becomes due. When the dwell has passed, origin shifts forward by the
// frozen span actually observed, so throttled hosts neither lose nor gain
// time. A second error card during a freeze does not extend it.
//
// CRITICAL PATTERNS:
//
// No Dangling Callbacks:
// Pause and Reset cancel the drive-loop tick and every typing step through
// host.Cancel before returning. Every scheduled callback re-checks engine
// state on entry and is a no-op if it went stale.
//
// At-most-once Firing:
// Entries are taken from the schedule one at a time and marked fired
// before their side effects run, so a renderer that pauses the engine from
// inside a callback never causes an entry to fire twice or be skipped.
package engine
