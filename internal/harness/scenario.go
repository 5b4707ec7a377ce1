package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one emulated run of a lowered cycle.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Workflow is the path of the .cue source. Relative paths are resolved
	// against the scenario file's directory by LoadScenario.
	Workflow string `yaml:"workflow"`

	// Cycle is the cycle to emulate.
	Cycle string `yaml:"cycle"`

	// Namespace overrides the artifact namespace. Defaults to the workflow
	// name, as the compiler does.
	Namespace string `yaml:"namespace,omitempty"`

	// MaxSteps overrides the emulator's dispatch quota per key.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Keys are the concurrency keys to start the cycle for, in order.
	Keys []string `yaml:"keys"`

	// Script supplies body outputs and predicate values per iteration.
	Script []ScriptStep `yaml:"script,omitempty"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// ScriptStep scripts one iteration.
type ScriptStep struct {
	// Key restricts the step to one concurrency key. Empty matches all.
	Key string `yaml:"key,omitempty"`

	// Iteration is the 0-based iteration the step applies to.
	Iteration int `yaml:"iteration"`

	// Outputs maps body unit → output → value.
	Outputs map[string]map[string]string `yaml:"outputs,omitempty"`

	// Predicate is the value of the until script. Nil means false.
	Predicate *bool `yaml:"predicate,omitempty"`

	// Fail names a body unit that exits non-zero in this iteration.
	Fail string `yaml:"fail,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Key restricts the assertion to one concurrency key. Required by
	// iterations, decision, artifact_chain and final_state.
	Key string `yaml:"key,omitempty"`

	// Iteration selects the decision (used by decision).
	Iteration int `yaml:"iteration,omitempty"`

	// Decision holds expected decision fields (used by decision):
	// satisfied, rail, done, continue.
	Decision map[string]bool `yaml:"decision,omitempty"`

	// Count is the expected number (used by iterations and trace_count).
	Count int `yaml:"count,omitempty"`

	// Kind is the event kind (used by trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Kinds is the expected event kind order (used by trace_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Names is the expected artifact chain (used by artifact_chain).
	Names []string `yaml:"names,omitempty"`

	// Expect maps "unit.output" to its captured value (used by
	// final_state). Subset match.
	Expect map[string]string `yaml:"expect,omitempty"`

	// Code is the expected runtime error code (used by failure).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertIterations    = "iterations"
	AssertDecision      = "decision"
	AssertArtifactChain = "artifact_chain"
	AssertFinalState    = "final_state"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFailure       = "failure"
)

var decisionFields = map[string]bool{"satisfied": true, "rail": true, "done": true, "continue": true}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if scenario.Workflow != "" && !filepath.IsAbs(scenario.Workflow) {
		scenario.Workflow = filepath.Join(filepath.Dir(path), scenario.Workflow)
	}
	if _, err := os.Stat(scenario.Workflow); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: invalid scenario: workflow file not found: %s", path, scenario.Workflow)
	}
	return scenario, nil
}

// ParseScenario decodes and validates a scenario without touching the
// file system.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Workflow == "" {
		return fmt.Errorf("workflow is required")
	}
	if s.Cycle == "" {
		return fmt.Errorf("cycle is required")
	}
	if len(s.Keys) == 0 {
		return fmt.Errorf("keys list is required and must be non-empty")
	}
	for i, k := range s.Keys {
		if k == "" {
			return fmt.Errorf("keys[%d]: key must be non-empty", i)
		}
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Script {
		if step.Iteration < 0 {
			return fmt.Errorf("script[%d]: iteration must be non-negative", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertIterations:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for iterations", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for iterations", index)
		}
	case AssertDecision:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for decision", index)
		}
		if len(a.Decision) == 0 {
			return fmt.Errorf("assertions[%d]: decision is required for decision", index)
		}
		for f := range a.Decision {
			if !decisionFields[f] {
				return fmt.Errorf("assertions[%d]: unknown decision field %q", index, f)
			}
		}
	case AssertArtifactChain:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for artifact_chain", index)
		}
	case AssertFinalState:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFailure:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for failure", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
