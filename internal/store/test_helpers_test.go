package store

import (
	"path/filepath"
	"testing"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestInvocation creates a queued invocation with minimal fields.
func createTestInvocation(id, key string, seq int64) Invocation {
	return Invocation{
		ID:       id,
		Seq:      seq,
		Workflow: "review",
		Cycle:    "refine",
		Key:      key,
	}
}
