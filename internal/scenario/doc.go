// Package scenario defines the pre-authored timeline played by the demo.
//
// A Scenario is static, trusted data: an identifier, a title, a total
// duration and a set of timed events. Events are a sealed set of kinds:
//
//   - PhaseTransition: moves the narrative to pre-session, protocol or post-session
//   - ChatMessage: a bubble on the left or right panel revealed with a typing effect
//   - ProtocolCard: a trace card with typed lines, optional status and sub-cards
//   - SignalEmission: an opaque payload handed to the renderer untouched
//
// # Authoring
//
// Scenarios are written in YAML or CUE. Both formats share field names:
//
//	id: handshake
//	title: "Mutual handshake"
//	duration_ms: 31000
//	events:
//	  - {kind: phase, at: 12000, phase: protocol}
//	  - {kind: chat, at: 1000, side: left, role: human, name: Alice, text: "hi"}
//	  - kind: card
//	    at: 21000
//	    card: {id: c3, step: "3", title: "Verify", error: true, lines: []}
//	  - {kind: signal, at: 26000, payload: "{}"}
//
// CUE files are unified with an embedded schema before decoding, so type
// errors carry file positions. YAML files are decoded in strict mode and
// reject unknown fields.
//
// All offsets are milliseconds from scenario start. Validate rejects
// negative offsets and durations, unknown enum values, and two chat
// messages sharing the same (side, offset) key.
package scenario
