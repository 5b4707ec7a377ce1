package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

const invocationColumns = `id, seq, workflow, cycle, concurrency_key, iteration, prev_run, status`

const artifactColumns = `name, invocation_id, cycle, concurrency_key, iteration, state, digest, seq`

type scanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row scanner) (Invocation, error) {
	var (
		inv    Invocation
		status string
	)
	if err := row.Scan(&inv.ID, &inv.Seq, &inv.Workflow, &inv.Cycle, &inv.Key, &inv.Iteration, &inv.PrevRun, &status); err != nil {
		return Invocation{}, err
	}
	inv.Status = Status(status)
	return inv, nil
}

func scanArtifact(row scanner) (Artifact, error) {
	var (
		a     Artifact
		state string
	)
	if err := row.Scan(&a.Name, &a.InvocationID, &a.Cycle, &a.Key, &a.Iteration, &state, &a.Digest, &a.Seq); err != nil {
		return Artifact{}, err
	}
	a.State = []byte(state)
	return a, nil
}

// ReadInvocation retrieves a single invocation by ID.
// Returns ErrNotFound if it does not exist.
func (s *Store) ReadInvocation(ctx context.Context, id string) (Invocation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invocationColumns+` FROM invocations WHERE id = ?`, id)
	inv, err := scanInvocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Invocation{}, fmt.Errorf("invocation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Invocation{}, fmt.Errorf("read invocation %s: %w", id, err)
	}
	return inv, nil
}

// Invocations returns every invocation in seq order.
func (s *Store) Invocations(ctx context.Context) ([]Invocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invocationColumns+`
		FROM invocations
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	invocations := []Invocation{}
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}
	return invocations, nil
}

// ReadArtifact retrieves a state artifact by its name.
// Returns ErrNotFound if it does not exist.
func (s *Store) ReadArtifact(ctx context.Context, name string) (Artifact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE name = ?`, name)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, fmt.Errorf("artifact %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return a, nil
}

// Artifacts returns the artifact chain of a concurrency key in seq order.
// An empty key returns every artifact.
func (s *Store) Artifacts(ctx context.Context, key string) ([]Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts`
	var args []any
	if key != "" {
		query += ` WHERE concurrency_key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY seq ASC, name COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []Artifact{}
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return artifacts, nil
}

// Events returns the trace in seq order.
func (s *Store) Events(ctx context.Context) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, invocation_id, kind, detail
		FROM events
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			ev     Event
			detail string
		)
		if err := rows.Scan(&ev.Seq, &ev.InvocationID, &ev.Kind, &detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.Detail, err = unmarshalDetail(detail); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LastSeq returns the highest seq recorded in the trace, or 0 for an empty
// store. Every invocation and artifact write is traced, so a clock resumed
// from LastSeq never reuses a seq.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq, nil
}
