// Package harness runs conformance suites against the playback engine.
//
// A suite is a YAML file naming a scenario, optional pacing overrides, a
// list of timed controls (pause, play, reset) and assertions over the
// resulting trace. Run plays the scenario on a testutil.VirtualHost with
// zero typing jitter, so a suite produces the same trace on every run and
// on every machine.
//
// # Suite format
//
//	name: handshake-freeze
//	description: Error card holds the clock for the dwell
//	scenario: ../scenarios/handshake.yaml   # relative to the suite file
//	config:
//	  tick_ms: 10
//	controls:
//	  - {at_ms: 5000, action: pause}
//	  - {at_ms: 65000, action: play}
//	assertions:
//	  - {type: trace_count, kind: chat-complete, count: 6}
//	  - {type: phase_at, at_ms: 12000, phase: protocol}
//
// Control times are virtual host milliseconds from the start of the run.
// Playback starts at host time 0. Assertion types:
//   - trace_contains: an event with kind and attrs (subset match) exists
//   - trace_order: events matching each entry of order appear in order
//   - trace_count: exactly count events match kind and attrs
//   - phase_at: the phase in effect on the first tick at or past at_ms of
//     logical elapsed time
//   - fired_after: the first matching event fired within [min_ms, max_ms]
//     of host time
//
// Golden traces live in testdata/golden/<name>.golden and are compared
// with goldie. Regenerate with:
//
//	go test ./internal/harness -update
package harness
