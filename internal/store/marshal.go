package store

import (
	"fmt"

	"github.com/cameron5906/workpipe/internal/ir"
)

// Status is the queue state of an invocation.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Invocation is one emulated CI run of a lowered cycle.
type Invocation struct {
	ID        string
	Seq       int64
	Workflow  string
	Cycle     string
	Key       string // concurrency key
	Iteration int
	PrevRun   string
	Status    Status
}

// Artifact is the stored state one iteration leaves for the next.
type Artifact struct {
	Name         string
	InvocationID string
	Cycle        string
	Key          string
	Iteration    int
	State        []byte // protocol.State JSON
	Digest       string
	Seq          int64
}

// Event is one trace record.
type Event struct {
	Seq          int64
	InvocationID string
	Kind         string
	Detail       ir.Object
}

// marshalDetail converts an event detail to canonical JSON TEXT for
// storage, so equal traces store equal bytes.
func marshalDetail(detail ir.Object) (string, error) {
	if detail == nil {
		return "{}", nil
	}
	data, err := ir.MarshalCanonical(detail)
	if err != nil {
		return "", fmt.Errorf("marshal detail: %w", err)
	}
	return string(data), nil
}

// unmarshalDetail parses canonical JSON TEXT back into an object.
func unmarshalDetail(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	v, err := ir.ParseValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal detail: %w", err)
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("unmarshal detail: expected object, got %T", v)
	}
	return obj, nil
}
