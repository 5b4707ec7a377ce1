// Package engine emulates the runtime protocol of lowered cycles offline.
//
// A compiled workflow only describes the protocol: hydrate restores the
// previous iteration's state artifact, the body units run, decide applies
// the termination rule and dispatch starts the next run of the same
// workflow. The engine executes exactly that protocol against a
// store.Store so lowered constructs can be tested without a CI host.
//
// ARCHITECTURE:
//
// Single-Writer Loop:
// Run claims runnable invocations from the store (at most one per
// concurrency key), expands each into its phase steps and executes the
// steps in FIFO order in one goroutine. Body outputs and predicate
// outcomes come from a Runner, which tests and the harness script.
//
// Per-Key Queue:
// An invocation whose key already has one running waits in the store
// until the running one finishes. Nothing is ever preempted.
//
// Logical Clock:
// Invocations, artifacts and trace events are stamped with seq numbers
// from Clock. Wall-clock time never orders anything, so the same script
// yields the same trace.
package engine
