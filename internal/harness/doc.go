// Package harness runs scripted scenarios against the protocol emulator.
//
// A scenario names a workflow source and one of its cycles, the
// concurrency keys to start it for, and a script of what each iteration's
// body units output and whether the termination predicate holds. The
// harness compiles the workflow, emulates the lowered protocol with
// internal/engine and checks assertions against the resulting trace.
//
// # Scenario Format
//
//	name: refine_converges
//	description: "Critique and revise until the score is high enough"
//	workflow: review.cue          # relative to the scenario file
//	cycle: refine
//	keys: [pr-7]
//	script:
//	  - iteration: 0
//	    outputs: {critique: {score: "4"}}
//	    predicate: false
//	  - iteration: 1
//	    outputs: {critique: {score: "9"}}
//	    predicate: true
//	assertions:
//	  - type: iterations
//	    key: pr-7
//	    count: 2
//	  - type: decision
//	    key: pr-7
//	    iteration: 1
//	    decision: {satisfied: true, done: true}
//
// A script step without a key applies to every key. Iterations the script
// does not mention output nothing and leave the predicate false.
//
// # Assertion Types
//
//   - iterations: the number of iterations decided for a key
//   - decision: fields of one iteration's decision
//   - artifact_chain: the artifact names of a key, in order
//   - final_state: captured outputs in a key's last artifact
//   - trace_order: event kinds appear in order (gaps allowed)
//   - trace_count: an event kind appears exactly N times
//   - failure: an invocation failed with the given runtime error code
//
// # Deterministic Testing
//
// Each scenario runs against a fresh in-memory store with a fresh logical
// clock and invocation ids run-1, run-2, ... so the trace is identical
// across runs and can be compared with golden files.
package harness
