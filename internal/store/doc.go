// Package store provides SQLite-backed durable storage for the protocol
// emulator.
//
// The store holds three append-mostly tables:
//   - Invocations: one row per emulated CI run, with its concurrency key
//     and queue status
//   - Artifacts: the state artifact each finished iteration leaves, under
//     its deterministic name
//   - Events: the trace of every phase the emulator executed
//
// # Ordering
//
// All ordering uses seq INTEGER (logical clock), never timestamps. Every
// query orders by seq ASC, id ASC COLLATE BINARY so results are identical
// across runs.
//
// # Per-key queue
//
// Claim hands out the oldest queued invocation whose concurrency key has
// nothing running. A running invocation is never preempted: a newer
// invocation with the same key waits until the running one is done.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
