package ir

import "fmt"

// Workflow is the lowered, acyclic output of one source file.
type Workflow struct {
	Name        string        `json:"name"`
	Source      string        `json:"source"` // workspace-relative source path
	Triggers    []string      `json:"triggers"`
	Inputs      []Input       `json:"inputs,omitempty"`
	Concurrency *Concurrency  `json:"concurrency,omitempty"`
	Permissions []Permission  `json:"permissions,omitempty"`
	Units       Units         `json:"units"`
	States      []StateSchema `json:"states,omitempty"`
}

// Unit looks up a unit by name.
func (w *Workflow) Unit(name string) (*Unit, bool) {
	for i := range w.Units {
		if w.Units[i].Name == name {
			return &w.Units[i], true
		}
	}
	return nil, false
}

// Input is a manual-dispatch workflow input.
type Input struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     string `json:"default"`
}

// Concurrency is a mutual-exclusion group. Cycles always use
// CancelInProgress false: a queued iteration waits, it never preempts.
type Concurrency struct {
	Group            string `json:"group"`
	CancelInProgress bool   `json:"cancel_in_progress"`
}

// Permission is one token scope.
type Permission struct {
	Scope string `json:"scope"`
	Level string `json:"level"`
}

// Phase says which part of the pipeline produced a unit.
type Phase uint8

const (
	PhaseUser Phase = iota + 1
	PhaseHydrate
	PhaseBody
	PhaseDecide
	PhaseDispatch
)

func (p Phase) String() string {
	switch p {
	case PhaseUser:
		return "user"
	case PhaseHydrate:
		return "hydrate"
	case PhaseBody:
		return "body"
	case PhaseDecide:
		return "decide"
	case PhaseDispatch:
		return "dispatch"
	default:
		panic(fmt.Sprintf("ir: unknown phase %d", p))
	}
}

// MarshalText renders the phase name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	for q := PhaseUser; q <= PhaseDispatch; q++ {
		if q.String() == string(b) {
			*p = q
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// Unit is one job of the acyclic output graph.
type Unit struct {
	Name        string       `json:"name"`
	Phase       Phase        `json:"phase"`
	Cycle       string       `json:"cycle,omitempty"`  // owning cycle for generated units
	Origin      string       `json:"origin,omitempty"` // source job of a body member
	Agent       bool         `json:"agent,omitempty"`
	Needs       []string     `json:"needs,omitempty"`
	If          string       `json:"if,omitempty"`
	RunsOn      string       `json:"runs_on,omitempty"`
	Concurrency *Concurrency `json:"concurrency,omitempty"`
	Env         []KV         `json:"env,omitempty"`
	Steps       []Step       `json:"steps,omitempty"`
	Outputs     []KV         `json:"outputs,omitempty"`
}

// Step is one opaque step.
type Step struct {
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
	If   string `json:"if,omitempty"`
	Uses string `json:"uses,omitempty"`
	Run  string `json:"run,omitempty"`
	With []KV   `json:"with,omitempty"`
	Env  []KV   `json:"env,omitempty"`
}

// KV is an ordered key/value pair.
type KV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// StateSchema is the persisted-state contract of one lowered cycle.
//
// The artifact itself always carries iteration, key, prevInvocationId,
// done, maxIters and outputs; Captured fixes which outputs must be present.
type StateSchema struct {
	Cycle     string         `json:"cycle"`
	Key       string         `json:"key"`
	MaxIters  *int           `json:"max_iters,omitempty"`
	Predicate bool           `json:"predicate"`
	Artifact  string         `json:"artifact"` // name pattern of the stored state
	Captured  []CapturedUnit `json:"captured"`
}

// CapturedUnit lists the outputs one body unit must capture.
type CapturedUnit struct {
	Unit    string   `json:"unit"`
	Outputs []string `json:"outputs"`
}
