package store

import (
	"context"
	"fmt"
)

// WriteInvocation inserts an invocation record into the store.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are
// silently ignored. Other constraint violations still return errors.
func (s *Store) WriteInvocation(ctx context.Context, inv Invocation) error {
	status := inv.Status
	if status == "" {
		status = StatusQueued
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invocations
		(id, seq, workflow, cycle, concurrency_key, iteration, prev_run, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		inv.ID,
		inv.Seq,
		inv.Workflow,
		inv.Cycle,
		inv.Key,
		inv.Iteration,
		inv.PrevRun,
		string(status),
	)
	if err != nil {
		return fmt.Errorf("write invocation: %w", err)
	}
	return nil
}

// Finish moves a running invocation to done or failed.
func (s *Store) Finish(ctx context.Context, id string, status Status) error {
	if status != StatusDone && status != StatusFailed {
		return fmt.Errorf("finish invocation %s: invalid final status %q", id, status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE invocations SET status = ?
		WHERE id = ? AND status = ?
	`, string(status), id, string(StatusRunning))
	if err != nil {
		return fmt.Errorf("finish invocation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish invocation %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("finish invocation %s: not running", id)
	}
	return nil
}

// WriteArtifact stores a state artifact under its name.
// Uses ON CONFLICT(name) DO NOTHING: a name identifies exactly one
// iteration of one invocation, so a second write is a replay of the first.
//
// Note: The invocation referenced by InvocationID must exist (foreign key constraint).
func (s *Store) WriteArtifact(ctx context.Context, a Artifact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts
		(name, invocation_id, cycle, concurrency_key, iteration, state, digest, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`,
		a.Name,
		a.InvocationID,
		a.Cycle,
		a.Key,
		a.Iteration,
		string(a.State),
		a.Digest,
		a.Seq,
	)
	if err != nil {
		return fmt.Errorf("write artifact %s: %w", a.Name, err)
	}
	return nil
}

// AppendEvent adds one trace record.
func (s *Store) AppendEvent(ctx context.Context, ev Event) error {
	detail, err := marshalDetail(ev.Detail)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (seq, invocation_id, kind, detail)
		VALUES (?, ?, ?, ?)
	`, ev.Seq, ev.InvocationID, ev.Kind, detail)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}
