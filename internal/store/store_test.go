package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cameron5906/workpipe/internal/ir"
)

func TestOpen_AppliesPragmas(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1", // NORMAL
		"foreign_keys": "1",
		"user_version": "1",
	} {
		got, err := s.pragma(name)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("pragma %s = %q, want %q", name, got, want)
		}
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer s.Close()

	if err := s.WriteInvocation(context.Background(), createTestInvocation("inv-1", "k", 1)); err != nil {
		t.Fatalf("WriteInvocation() failed: %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.WriteInvocation(ctx, createTestInvocation("inv-1", "pr-1", 1)); err != nil {
		t.Fatalf("WriteInvocation() failed: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	inv, err := s.ReadInvocation(ctx, "inv-1")
	if err != nil {
		t.Fatalf("ReadInvocation() failed: %v", err)
	}
	if inv.Key != "pr-1" {
		t.Errorf("Key = %q, want pr-1", inv.Key)
	}
}

func TestWriteInvocation_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inv := createTestInvocation("inv-1", "pr-1", 1)
	if err := s.WriteInvocation(ctx, inv); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	inv.Iteration = 5
	if err := s.WriteInvocation(ctx, inv); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	got, err := s.ReadInvocation(ctx, "inv-1")
	if err != nil {
		t.Fatalf("ReadInvocation() failed: %v", err)
	}
	if got.Iteration != 0 {
		t.Errorf("Iteration = %d, want 0 (first write wins)", got.Iteration)
	}
	if got.Status != StatusQueued {
		t.Errorf("Status = %q, want %q", got.Status, StatusQueued)
	}
}

func TestWriteInvocation_RejectsNegativeIteration(t *testing.T) {
	s := createTestStore(t)
	inv := createTestInvocation("inv-1", "pr-1", 1)
	inv.Iteration = -1
	if err := s.WriteInvocation(context.Background(), inv); err == nil {
		t.Fatal("WriteInvocation() with negative iteration should fail")
	}
}

func TestReadInvocation_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadInvocation(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestClaim_PerKeyQueue(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, inv := range []Invocation{
		createTestInvocation("a1", "pr-1", 1),
		createTestInvocation("a2", "pr-1", 2),
		createTestInvocation("b1", "pr-2", 3),
	} {
		if err := s.WriteInvocation(ctx, inv); err != nil {
			t.Fatalf("WriteInvocation(%s) failed: %v", inv.ID, err)
		}
	}

	claim := func() string {
		t.Helper()
		inv, ok, err := s.Claim(ctx)
		if err != nil {
			t.Fatalf("Claim() failed: %v", err)
		}
		if !ok {
			return ""
		}
		if inv.Status != StatusRunning {
			t.Errorf("claimed Status = %q, want running", inv.Status)
		}
		return inv.ID
	}

	if got := claim(); got != "a1" {
		t.Fatalf("first claim = %q, want a1", got)
	}
	// a2 waits behind a1 on the same key; b1 is free.
	if got := claim(); got != "b1" {
		t.Fatalf("second claim = %q, want b1", got)
	}
	if got := claim(); got != "" {
		t.Fatalf("third claim = %q, want nothing runnable", got)
	}

	waiting, err := s.Waiting(ctx, "pr-1")
	if err != nil {
		t.Fatalf("Waiting() failed: %v", err)
	}
	if len(waiting) != 1 || waiting[0].ID != "a2" {
		t.Fatalf("Waiting(pr-1) = %+v, want [a2]", waiting)
	}

	if err := s.Finish(ctx, "a1", StatusDone); err != nil {
		t.Fatalf("Finish() failed: %v", err)
	}
	if got := claim(); got != "a2" {
		t.Fatalf("claim after finish = %q, want a2", got)
	}
}

func TestClaim_TieBreaksOnID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a"} {
		if err := s.WriteInvocation(ctx, createTestInvocation(id, "k-"+id, 1)); err != nil {
			t.Fatalf("WriteInvocation(%s) failed: %v", id, err)
		}
	}
	inv, ok, err := s.Claim(ctx)
	if err != nil || !ok {
		t.Fatalf("Claim() = %v, %v", ok, err)
	}
	if inv.ID != "a" {
		t.Errorf("claimed %q, want a", inv.ID)
	}
}

func TestFinish_RequiresRunning(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.WriteInvocation(ctx, createTestInvocation("inv-1", "pr-1", 1)); err != nil {
		t.Fatalf("WriteInvocation() failed: %v", err)
	}
	if err := s.Finish(ctx, "inv-1", StatusDone); err == nil {
		t.Error("Finish() on a queued invocation should fail")
	}
	if err := s.Finish(ctx, "inv-1", StatusQueued); err == nil {
		t.Error("Finish() with a non-final status should fail")
	}
}

func TestArtifacts_ChainOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.WriteInvocation(ctx, createTestInvocation("inv-1", "pr-1", 1)); err != nil {
		t.Fatalf("WriteInvocation() failed: %v", err)
	}
	if err := s.WriteInvocation(ctx, createTestInvocation("inv-2", "pr-2", 2)); err != nil {
		t.Fatalf("WriteInvocation() failed: %v", err)
	}

	arts := []Artifact{
		{Name: "wp-refine-iter-1-run-inv-1", InvocationID: "inv-1", Cycle: "refine", Key: "pr-1", Iteration: 1, State: []byte(`{"iteration":1}`), Digest: "d1", Seq: 4},
		{Name: "wp-refine-iter-0-run-inv-2", InvocationID: "inv-2", Cycle: "refine", Key: "pr-2", Iteration: 0, State: []byte(`{}`), Digest: "d2", Seq: 3},
		{Name: "wp-refine-iter-0-run-inv-1", InvocationID: "inv-1", Cycle: "refine", Key: "pr-1", Iteration: 0, State: []byte(`{"iteration":0}`), Digest: "d0", Seq: 2},
	}
	for _, a := range arts {
		if err := s.WriteArtifact(ctx, a); err != nil {
			t.Fatalf("WriteArtifact(%s) failed: %v", a.Name, err)
		}
	}

	chain, err := s.Artifacts(ctx, "pr-1")
	if err != nil {
		t.Fatalf("Artifacts() failed: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("len(chain) = %d, want 2", len(chain))
	}
	if chain[0].Iteration != 0 || chain[1].Iteration != 1 {
		t.Errorf("chain iterations = %d, %d, want 0, 1", chain[0].Iteration, chain[1].Iteration)
	}
	if string(chain[1].State) != `{"iteration":1}` {
		t.Errorf("State = %s", chain[1].State)
	}

	all, err := s.Artifacts(ctx, "")
	if err != nil {
		t.Fatalf("Artifacts(\"\") failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}

	got, err := s.ReadArtifact(ctx, "wp-refine-iter-0-run-inv-2")
	if err != nil {
		t.Fatalf("ReadArtifact() failed: %v", err)
	}
	if got.Digest != "d2" {
		t.Errorf("Digest = %q, want d2", got.Digest)
	}

	_, err = s.ReadArtifact(ctx, "wp-refine-iter-9-run-inv-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing artifact err = %v, want ErrNotFound", err)
	}
}

func TestWriteArtifact_RequiresInvocation(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteArtifact(context.Background(), Artifact{
		Name: "x", InvocationID: "nope", Cycle: "c", Key: "k", State: []byte(`{}`), Digest: "d",
	})
	if err == nil {
		t.Fatal("WriteArtifact() for unknown invocation should fail")
	}
}

func TestEvents_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.WriteInvocation(ctx, createTestInvocation("inv-1", "pr-1", 1)); err != nil {
		t.Fatalf("WriteInvocation() failed: %v", err)
	}
	evs := []Event{
		{Seq: 1, InvocationID: "inv-1", Kind: "queued"},
		{Seq: 2, InvocationID: "inv-1", Kind: "decide", Detail: ir.Object{
			"iteration": ir.Int(0),
			"done":      ir.Bool(true),
			"reason":    ir.String("predicate"),
		}},
	}
	for _, ev := range evs {
		if err := s.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent() failed: %v", err)
		}
	}

	got, err := s.Events(ctx)
	if err != nil {
		t.Fatalf("Events() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(got))
	}
	if len(got[0].Detail) != 0 {
		t.Errorf("queued detail = %v, want empty", got[0].Detail)
	}
	if got[1].Detail["reason"] != ir.String("predicate") {
		t.Errorf("reason = %v", got[1].Detail["reason"])
	}
	if got[1].Detail["iteration"] != ir.Int(0) {
		t.Errorf("iteration = %v", got[1].Detail["iteration"])
	}
}

func TestOpen_MigratesOldDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec(`DROP INDEX idx_artifacts_key_seq`); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`PRAGMA user_version = 0`); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
	version, err := s.pragma("user_version")
	if err != nil {
		t.Fatal(err)
	}
	if version != "1" {
		t.Errorf("user_version = %s, want 1", version)
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_artifacts_key_seq'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("artifact chain index missing after migration")
	}
}
