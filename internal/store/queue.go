package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Claim marks the oldest runnable queued invocation as running and
// returns it. An invocation is runnable when no other invocation with the
// same concurrency key is running. ok is false when nothing is runnable.
func (s *Store) Claim(ctx context.Context) (inv Invocation, ok bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Invocation{}, false, fmt.Errorf("claim: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	row := tx.QueryRowContext(ctx, `
		SELECT `+invocationColumns+`
		FROM invocations q
		WHERE q.status = 'queued'
		  AND NOT EXISTS (
			SELECT 1 FROM invocations r
			WHERE r.concurrency_key = q.concurrency_key AND r.status = 'running'
		  )
		ORDER BY q.seq ASC, q.id COLLATE BINARY ASC
		LIMIT 1
	`)
	inv, err = scanInvocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Invocation{}, false, nil
	}
	if err != nil {
		return Invocation{}, false, fmt.Errorf("claim: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE invocations SET status = 'running' WHERE id = ?`, inv.ID); err != nil {
		return Invocation{}, false, fmt.Errorf("claim %s: %w", inv.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return Invocation{}, false, fmt.Errorf("claim: commit: %w", err)
	}
	inv.Status = StatusRunning
	return inv, true, nil
}

// Waiting returns the queued invocations of key in the order they will run.
func (s *Store) Waiting(ctx context.Context, key string) ([]Invocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invocationColumns+`
		FROM invocations
		WHERE concurrency_key = ? AND status = 'queued'
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("query waiting: %w", err)
	}
	defer rows.Close()

	waiting := []Invocation{}
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		waiting = append(waiting, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate waiting: %w", err)
	}
	return waiting, nil
}
