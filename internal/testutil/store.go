// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/cameron5906/workpipe/internal/store"
)

// OpenStore opens a fresh store in a temp directory and closes it when the
// test ends.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
