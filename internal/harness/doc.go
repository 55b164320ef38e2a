// Package harness replays captured console transcripts through the
// player operations.
//
// A new game build tends to change a command's syntax or the wording of
// the line that confirms it. Scenarios pin that down offline: each one
// names a strategy version, an operation and the lines the console
// printed, and states what the operation must report. The real
// verifier, classifiers and operator run unchanged against a fake
// console that answers from the transcript.
//
// # Scenario Format
//
//	name: heal_b42
//	description: "B42 heal confirms on the god mode off line"
//	version: B42
//	operation: heal
//	players: [Bob]
//	whitelist:
//	  - {username: Bob, role: "2"}
//	transcript:
//	  - on: players
//	    lines: ["Players connected (1):", "-Bob", ""]
//	  - on: godmodeplayer "Bob" -true
//	    lines: ["User Bob is now invincible."]
//	  - on: godmodeplayer "Bob" -false
//	    lines: ["User Bob is no longer invincible."]
//	expect:
//	  outcome: confirmed
//	  status: "I have healed **Bob**"
//	assertions:
//	  - type: command_order
//	    commands: [players, godmodeplayer]
//
// # Assertion Types
//
//   - command_sent: a command starting with the given prefix was sent
//   - command_order: commands with the given prefixes were sent in order
//   - command_count: exactly N commands start with the given prefix
//   - status_contains: the reported status contains the given text
//
// # Golden Files
//
// The trace of commands and replayed lines, plus the outcome and status,
// can be compared against golden/<scenario>.golden next to the scenario
// file (zomboctl test --update regenerates them).
package harness
