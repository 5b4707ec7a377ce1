package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cameron5906/workpipe/internal/compiler"
	"github.com/cameron5906/workpipe/internal/diag"
	"github.com/cameron5906/workpipe/internal/engine"
	"github.com/cameron5906/workpipe/internal/frontend"
	"github.com/cameron5906/workpipe/internal/ir"
	"github.com/cameron5906/workpipe/internal/protocol"
	"github.com/cameron5906/workpipe/internal/store"
)

// CompileError is returned when a scenario's workflow does not compile.
type CompileError struct {
	Path        string
	Diagnostics []diag.Diagnostic
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	var msgs []string
	for _, d := range e.Diagnostics {
		if d.IsError() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", d.Code, d.Message))
		}
	}
	return fmt.Sprintf("compile %s: %s", e.Path, strings.Join(msgs, "; "))
}

// Option configures a scenario run.
type Option func(*harness)

// WithLogger sets the logger the compiler and emulator write to.
func WithLogger(l *slog.Logger) Option {
	return func(h *harness) {
		if l != nil {
			h.logger = l
		}
	}
}

type harness struct {
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Parse and compile the workflow file
//  2. Extract the scenario's construct
//  3. Start the construct for every key in a fresh in-memory store
//  4. Run the emulator until nothing is runnable
//  5. Collect the trace and final states and evaluate assertions
//
// A returned error means the scenario could not run at all; assertion
// failures are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &harness{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(h)
	}

	construct, err := h.compile(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	engineOpts := []engine.EngineOption{engine.WithLogger(h.logger)}
	if scenario.MaxSteps > 0 {
		engineOpts = append(engineOpts, engine.WithMaxSteps(scenario.MaxSteps))
	}
	eng := engine.New(st, newScriptRunner(scenario.Script), engine.NewSequentialGenerator("run"), engineOpts...)

	for _, key := range scenario.Keys {
		if _, err := eng.Start(ctx, construct, key); err != nil {
			return nil, err
		}
	}

	// Runtime failures are part of the trace; assertions decide whether
	// they were expected.
	runErr := eng.Run(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.logger.Debug("scenario executed", "scenario", scenario.Name, "error", runErr)

	result := NewResult()
	if err := collect(ctx, st, result); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	if !expectsFailure(scenario.Assertions) {
		for _, ev := range result.Events(engine.EventFailed, "") {
			result.AddError(fmt.Sprintf("invocation %s (key %s) failed: %s",
				ev.Invocation, ev.Key, detailString(ev.Detail, "message")))
		}
	}
	return result, nil
}

// compile parses the scenario's workflow file and extracts its construct.
func (h *harness) compile(scenario *Scenario) (engine.Construct, error) {
	src, err := os.ReadFile(scenario.Workflow)
	if err != nil {
		return engine.Construct{}, fmt.Errorf("read workflow: %w", err)
	}
	f, err := frontend.ParseFile(filepath.ToSlash(filepath.Base(scenario.Workflow)), src)
	if err != nil {
		return engine.Construct{}, err
	}
	res := compiler.Compile(f, compiler.Options{
		Namespace: scenario.Namespace,
		Logger:    h.logger,
	})
	if res.HasErrors() {
		return engine.Construct{}, &CompileError{Path: scenario.Workflow, Diagnostics: res.Diagnostics}
	}
	return engine.ConstructFor(res.Workflow, scenario.Cycle)
}

// collect copies the trace and the last state of every key out of the
// store.
func collect(ctx context.Context, st *store.Store, result *Result) error {
	invs, err := st.Invocations(ctx)
	if err != nil {
		return err
	}
	keys := make(map[string]string, len(invs))
	for _, inv := range invs {
		keys[inv.ID] = inv.Key
	}

	events, err := st.Events(ctx)
	if err != nil {
		return err
	}
	for _, ev := range events {
		result.Trace = append(result.Trace, TraceEvent{
			Invocation: ev.InvocationID,
			Key:        keys[ev.InvocationID],
			Kind:       ev.Kind,
			Detail:     ev.Detail,
		})
	}

	arts, err := st.Artifacts(ctx, "")
	if err != nil {
		return err
	}
	for _, a := range arts {
		s, err := protocol.Unmarshal(a.State)
		if err != nil {
			return fmt.Errorf("artifact %s: %w", a.Name, err)
		}
		final := make(map[string]string)
		for unit, outs := range s.Outputs {
			for out, v := range outs {
				final[unit+"."+out] = v
			}
		}
		result.Final[a.Key] = final // seq order: the last write wins
	}
	return nil
}

func expectsFailure(assertions []Assertion) bool {
	for _, a := range assertions {
		if a.Type == AssertFailure {
			return true
		}
	}
	return false
}

func detailString(d ir.Object, field string) string {
	if s, ok := d[field].(ir.String); ok {
		return string(s)
	}
	return ""
}

// scriptRunner answers the emulator from a scenario script.
type scriptRunner struct {
	steps []ScriptStep
}

func newScriptRunner(steps []ScriptStep) *scriptRunner {
	return &scriptRunner{steps: steps}
}

// lookup returns the step for key and iteration. A keyed step wins over
// an unkeyed one.
func (r *scriptRunner) lookup(key string, iteration int) (ScriptStep, bool) {
	var fallback *ScriptStep
	for i := range r.steps {
		s := &r.steps[i]
		if s.Iteration != iteration {
			continue
		}
		if s.Key == key {
			return *s, true
		}
		if s.Key == "" && fallback == nil {
			fallback = s
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return ScriptStep{}, false
}

func (r *scriptRunner) Body(_ context.Context, call engine.BodyCall) (map[string]string, error) {
	step, ok := r.lookup(call.Key, call.Iteration)
	if !ok {
		return nil, nil
	}
	if step.Fail == call.Unit {
		return nil, errors.New("scripted failure")
	}
	return step.Outputs[call.Unit], nil
}

func (r *scriptRunner) Predicate(_ context.Context, call engine.PredicateCall) (bool, error) {
	step, ok := r.lookup(call.Key, call.Iteration)
	if !ok || step.Predicate == nil {
		return false, nil
	}
	return *step.Predicate, nil
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
