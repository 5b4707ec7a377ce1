// Package protocol defines the runtime half of a lowered cycle: the state
// artifact passed between invocations, its deterministic name, and the
// decide and advance rules the generated scripts implement.
//
// The compiler never executes any of this. The lowering engine generates
// shell that mirrors Decide exactly, and the protocol emulator in
// internal/engine calls Decide and Next directly.
package protocol

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Dispatch input names. Every compiled workflow that contains a cycle
// accepts these on manual dispatch.
const (
	InputConstruct = "wp_construct"
	InputIteration = "wp_iteration"
	InputKey       = "wp_key"
	InputPrevRun   = "wp_prev_run"
)

// NoCap is the MaxIters value of a cycle declared without max_iters.
const NoCap = -1

var stateValidate = validator.New()

// State is the artifact one iteration leaves for the next. All captured
// output values are strings, whatever their declared type.
type State struct {
	Iteration        int                          `json:"iteration" validate:"gte=0"`
	Key              string                       `json:"key" validate:"required"`
	PrevInvocationID string                       `json:"prevInvocationId"`
	Done             bool                         `json:"done"`
	MaxIters         int                          `json:"maxIters" validate:"gte=-1"`
	Outputs          map[string]map[string]string `json:"outputs"`
}

// Initial returns the state of iteration 0 for key.
func Initial(key string, maxIters *int) State {
	s := State{Key: key, MaxIters: NoCap, Outputs: map[string]map[string]string{}}
	if maxIters != nil {
		s.MaxIters = *maxIters
	}
	return s
}

// Validate checks the structural constraints of a decoded artifact.
func (s State) Validate() error {
	if err := stateValidate.Struct(s); err != nil {
		return fmt.Errorf("invalid state artifact: %w", err)
	}
	return nil
}

// Cap returns the iteration cap, or nil for an uncapped cycle.
func (s State) Cap() *int {
	if s.MaxIters == NoCap {
		return nil
	}
	c := s.MaxIters
	return &c
}

// Capture records one output value of a body unit.
func (s *State) Capture(unit, output, value string) {
	if s.Outputs == nil {
		s.Outputs = make(map[string]map[string]string)
	}
	if s.Outputs[unit] == nil {
		s.Outputs[unit] = make(map[string]string)
	}
	s.Outputs[unit][output] = value
}

// Marshal encodes the artifact. encoding/json sorts map keys, so equal
// states encode to equal bytes.
func (s State) Marshal() ([]byte, error) {
	if s.Outputs == nil {
		s.Outputs = map[string]map[string]string{}
	}
	return json.Marshal(s)
}

// Unmarshal decodes and validates an artifact.
func Unmarshal(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("decode state artifact: %w", err)
	}
	if s.Outputs == nil {
		s.Outputs = map[string]map[string]string{}
	}
	return s, s.Validate()
}

// ArtifactName is the handle the state of one iteration is stored under.
// It is a pure function of its arguments.
func ArtifactName(namespace, cycle string, iteration int, invocationID string) string {
	return fmt.Sprintf("%s-%s-iter-%s-run-%s", namespace, cycle, strconv.Itoa(iteration), invocationID)
}

// ArtifactPattern is ArtifactName with placeholders for the runtime parts.
func ArtifactPattern(namespace, cycle string) string {
	return fmt.Sprintf("%s-%s-iter-{iteration}-run-{invocation}", namespace, cycle)
}

// Decision is the outcome of the decide phase.
type Decision struct {
	Iteration int  `json:"iteration"`
	Satisfied bool `json:"satisfied"` // the predicate held
	Rail      bool `json:"rail"`      // the iteration cap forced termination
	Done      bool `json:"done"`
	Continue  bool `json:"continue"`
}

// Decide applies the termination rule to the state of the iteration that
// just ran. A nil predicate means the cycle has none and never satisfies
// on its own; a nil cap never triggers the rail.
//
//	done     = satisfied || (cap != nil && iteration >= cap-1)
//	continue = !done
func Decide(s State, maxIters *int, predicate *bool) Decision {
	d := Decision{Iteration: s.Iteration}
	if predicate != nil {
		d.Satisfied = *predicate
	}
	if maxIters != nil {
		d.Rail = s.Iteration >= *maxIters-1
	}
	d.Done = d.Satisfied || d.Rail
	d.Continue = !d.Done
	return d
}

// Next returns the state the dispatched invocation starts from: the
// counter advanced, the key kept, and the finishing invocation recorded as
// the previous one. Captured outputs carry over so the next hydrate can
// expose them.
func Next(s State, invocationID string) State {
	n := s
	n.Iteration = s.Iteration + 1
	n.PrevInvocationID = invocationID
	n.Done = false
	n.Outputs = make(map[string]map[string]string, len(s.Outputs))
	for unit, outs := range s.Outputs {
		n.Outputs[unit] = maps.Clone(outs)
	}
	return n
}

// DispatchInputs are the workflow inputs the dispatch phase sends to start
// the next iteration, in a fixed order.
func DispatchInputs(cycle string, next State) [][2]string {
	return [][2]string{
		{InputConstruct, cycle},
		{InputIteration, strconv.Itoa(next.Iteration)},
		{InputKey, next.Key},
		{InputPrevRun, next.PrevInvocationID},
	}
}
