// Package harness runs multi-machine sync scenarios against real stores.
//
// A scenario names a set of machines, each with its own history database,
// seeds them, drives a flow of inserts, seals, and syncs between them, and
// then asserts on the final contents.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	machines: [laptop, desktop]
//	setup:
//	  - machine: laptop
//	    insert: { command: "git status", start: 1000, session: 1 }
//	flow:
//	  - action: stdio_sync
//	    machine: laptop
//	    peer: desktop
//	    mode: bidirectional
//	    expect: { considered: 1, added: 0 }
//	assertions:
//	  - type: commands
//	    machine: desktop
//	    commands: ["git status"]
//	  - type: converged
//	    machines: [laptop, desktop]
//
// # Flow Actions
//
//   - insert, seal: record or finish a command on machine
//   - merge_snapshot: merge a snapshot of peer, optionally since-filtered
//   - merge_garbage: merge a file that is not a database (always fails; pair with expect.error)
//   - stdio_sync: run the stream protocol between machine and peer
//   - directory_sync: sync machine through the shared directory
//
// # Assertion Types
//
//   - commands: the machine holds exactly these commands
//   - count: the machine holds exactly count rows
//   - open: the machine holds exactly count unsealed rows
//   - converged: all listed machines hold the same natural keys
//
// Each run works in its own directory, and every step is recorded in the
// result trace. RunWithGolden compares the trace and final state against
// testdata/golden/{name}.golden.
package harness
