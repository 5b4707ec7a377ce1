package harness

import "github.com/cameron5906/workpipe/internal/ir"

// TraceEvent is one emulator event, tagged with the concurrency key of its
// invocation.
type TraceEvent struct {
	Invocation string    `json:"invocation"`
	Key        string    `json:"key"`
	Kind       string    `json:"kind"`
	Detail     ir.Object `json:"detail"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held and no invocation failed
	// unexpectedly.
	Pass bool `json:"pass"`

	// Trace contains every emulator event in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final holds the last artifact state of each key, captured outputs
	// flattened to "unit.output".
	Final map[string]map[string]string `json:"final,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Final:  make(map[string]map[string]string),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Events returns the events of one kind, optionally restricted to key.
func (r *Result) Events(kind, key string) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Kind == kind && (key == "" || ev.Key == key) {
			out = append(out, ev)
		}
	}
	return out
}
