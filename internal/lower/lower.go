// Package lower rewrites a cycle into the four acyclic phases the execution
// engine can run: hydrate, body, decide and dispatch. Iteration happens
// across invocations; one invocation runs exactly one iteration and the
// dispatch phase starts the next.
package lower

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/cameron5906/workpipe/internal/ast"
	"github.com/cameron5906/workpipe/internal/diag"
	"github.com/cameron5906/workpipe/internal/graph"
	"github.com/cameron5906/workpipe/internal/ir"
	"github.com/cameron5906/workpipe/internal/protocol"
)

// DefaultRunsOn is the runner label of generated phases.
const DefaultRunsOn = "ubuntu-latest"

// UploadAction persists the state artifact.
const UploadAction = "actions/upload-artifact@v4"

// Options carry the per-workflow facts lowering needs.
type Options struct {
	Namespace    string // artifact namespace, usually the workflow name
	WorkflowFile string // file the dispatch phase re-invokes
	FileStem     string // source file stem, used for the default key
	RunsOn       string
	Logger       *slog.Logger
}

func (o Options) runsOn() string {
	if o.RunsOn == "" {
		return DefaultRunsOn
	}
	return o.RunsOn
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// Result is one lowered cycle.
type Result struct {
	Units       []ir.Unit // hydrate, body members in body order, decide, dispatch
	State       ir.StateSchema
	Concurrency ir.Concurrency
}

// Lower lowers cy. body holds the resolved body jobs in body order, with
// needs and output references still naming the source jobs. Lower assumes
// Check(cy) found nothing; it reports what only the body graph shows
// (E309), defaults a missing key (W401) and records I501 on success. ok is
// false when the cycle was dropped.
func Lower(cy *ast.Cycle, body []ir.Unit, opts Options, c *diag.Collector) (Result, bool) {
	name := cy.Name.Name
	log := opts.logger().With("cycle", name)

	members := make(map[string]bool, len(body))
	for _, u := range body {
		members[u.Name] = true
	}
	if !checkBodyGraph(cy, body, members, c) {
		log.Debug("cycle dropped", "reason", diag.ErrBodyInternalLoop)
		return Result{}, false
	}

	key := ""
	if cy.Key != nil {
		key = strings.TrimSpace(cy.Key.Body)
	}
	if key == "" {
		key = DefaultKey(opts.FileStem, name)
		c.Record(diag.WarnMissingKey, diag.SeverityWarning,
			fmt.Sprintf("cycle %q has no key; using %q", name, key), cy.Name.Span,
			diag.WithHint("set key to serialize iterations per logical subject"))
	}

	var maxIters *int
	if cy.MaxIters != nil {
		v := cy.MaxIters.Value
		maxIters = &v
	}
	predicate := HasPredicate(cy)

	conc := ir.Concurrency{Group: key, CancelInProgress: false}
	l := &lowering{
		cycle:     name,
		key:       key,
		maxIters:  maxIters,
		opts:      opts,
		members:   members,
		conc:      conc,
		predicate: predicate,
	}
	if predicate {
		l.until = cy.Until.Body
	}

	units := make([]ir.Unit, 0, len(body)+3)
	units = append(units, l.hydrate())
	for _, u := range body {
		units = append(units, l.member(u))
	}
	units = append(units, l.decide(terminals(body, members)), l.dispatch())

	state := ir.StateSchema{
		Cycle:     name,
		Key:       key,
		MaxIters:  maxIters,
		Predicate: predicate,
		Artifact:  protocol.ArtifactPattern(opts.Namespace, name),
		Captured:  make([]ir.CapturedUnit, 0, len(body)),
	}
	for _, u := range body {
		outs := make([]string, 0, len(u.Outputs))
		for _, o := range u.Outputs {
			outs = append(outs, o.Key)
		}
		state.Captured = append(state.Captured, ir.CapturedUnit{Unit: u.Name, Outputs: outs})
	}

	generated := make([]string, len(units))
	for i, u := range units {
		generated[i] = u.Name
	}
	c.Infof(diag.InfoCycleLowered, cy.Name.Span, "cycle %q lowered to %s", name, strings.Join(generated, ", "))
	log.Debug("cycle lowered", "units", len(units), "key", key)

	return Result{Units: units, State: state, Concurrency: conc}, true
}

// checkBodyGraph reports every needs cycle among body members. Such a loop
// is never broken automatically: state from the previous iteration is read
// through the hydrate outputs instead.
func checkBodyGraph(cy *ast.Cycle, body []ir.Unit, members map[string]bool, c *diag.Collector) bool {
	g := graph.New[string]()
	for _, u := range body {
		g.AddNode(u.Name)
	}
	for _, u := range body {
		for _, n := range u.Needs {
			if members[n] {
				g.AddEdge(u.Name, n)
			}
		}
	}

	spans := make(map[string]ast.Span, len(body))
	for _, j := range cy.Jobs() {
		spans[j.Name.Name] = j.Name.Span
	}

	ok := true
	for _, scc := range graph.Cycles(g) {
		ok = false
		inCycle := make(map[string]bool, len(scc))
		for _, n := range scc {
			inCycle[n] = true
		}
		// Report at the first member in body order.
		var first string
		for _, u := range body {
			if inCycle[u.Name] {
				first = u.Name
				break
			}
		}
		names := make([]string, 0, len(scc))
		for _, u := range body {
			if inCycle[u.Name] {
				names = append(names, u.Name)
			}
		}
		path := graph.CyclePath(scc, g, first)
		c.Record(diag.ErrBodyInternalLoop, diag.SeverityError,
			fmt.Sprintf("cycle %q body has cyclic needs: %s", cy.Name.Name, strings.Join(path, " -> ")),
			spans[first],
			diag.WithHint(fmt.Sprintf("read the previous iteration through needs.%s.outputs.state instead of depending on %s",
				HydrateName(cy.Name.Name), strings.Join(names, ", "))))
	}
	return ok
}

// terminals returns the members no other member needs, in body order.
func terminals(body []ir.Unit, members map[string]bool) []string {
	needed := make(map[string]bool, len(body))
	for _, u := range body {
		for _, n := range u.Needs {
			if members[n] {
				needed[n] = true
			}
		}
	}
	var out []string
	for _, u := range body {
		if !needed[u.Name] {
			out = append(out, u.Name)
		}
	}
	return out
}

var needsRef = regexp.MustCompile(`\bneeds\.([A-Za-z_][A-Za-z0-9_-]*)\.`)

type lowering struct {
	cycle     string
	key       string
	maxIters  *int
	opts      Options
	members   map[string]bool
	conc      ir.Concurrency
	predicate bool
	until     string
}

// rewrite points needs.<member>. references at the lowered member names.
func (l *lowering) rewrite(s string) string {
	if !strings.Contains(s, "needs.") {
		return s
	}
	return needsRef.ReplaceAllStringFunc(s, func(m string) string {
		unit := needsRef.FindStringSubmatch(m)[1]
		if !l.members[unit] {
			return m
		}
		return "needs." + BodyName(l.cycle, unit) + "."
	})
}

func (l *lowering) rewriteKVs(kvs []ir.KV) []ir.KV {
	if kvs == nil {
		return nil
	}
	out := make([]ir.KV, len(kvs))
	for i, kv := range kvs {
		out[i] = ir.KV{Key: kv.Key, Value: l.rewrite(kv.Value)}
	}
	return out
}

func (l *lowering) concurrency() *ir.Concurrency {
	c := l.conc
	return &c
}

func (l *lowering) hydrate() ir.Unit {
	return ir.Unit{
		Name:        HydrateName(l.cycle),
		Phase:       ir.PhaseHydrate,
		Cycle:       l.cycle,
		If:          fmt.Sprintf("inputs.%[1]s == '' || inputs.%[1]s == '%[2]s'", protocol.InputConstruct, l.cycle),
		RunsOn:      l.opts.runsOn(),
		Concurrency: l.concurrency(),
		Env: []ir.KV{
			{Key: "GH_TOKEN", Value: "${{ github.token }}"},
			{Key: "WP_ITERATION", Value: expr("inputs." + protocol.InputIteration)},
			{Key: "WP_PREV_RUN", Value: expr("inputs." + protocol.InputPrevRun)},
			{Key: "WP_INPUT_KEY", Value: expr("inputs." + protocol.InputKey)},
			{Key: "WP_DEFAULT_KEY", Value: l.key},
		},
		Steps: []ir.Step{
			{
				Name: "Restore state",
				If:   fmt.Sprintf("inputs.%[1]s != '' && inputs.%[1]s != '0'", protocol.InputIteration),
				Run:  restoreScript(l.cycle, l.opts.Namespace),
			},
			{
				Name: "Materialize state",
				ID:   "state",
				Run:  materializeScript(l.cycle, l.maxIters),
			},
		},
		Outputs: []ir.KV{
			{Key: "iteration", Value: expr("steps.state.outputs.iteration")},
			{Key: "key", Value: expr("steps.state.outputs.key")},
			{Key: "prev_run", Value: expr("steps.state.outputs.prev_run")},
			{Key: "state", Value: expr("steps.state.outputs.state")},
		},
	}
}

func (l *lowering) member(u ir.Unit) ir.Unit {
	m := ir.Unit{
		Name:        BodyName(l.cycle, u.Name),
		Phase:       ir.PhaseBody,
		Cycle:       l.cycle,
		Origin:      u.Name,
		Agent:       u.Agent,
		If:          l.rewrite(u.If),
		RunsOn:      u.RunsOn,
		Concurrency: l.concurrency(),
		Env:         l.rewriteKVs(u.Env),
	}

	m.Needs = append(m.Needs, HydrateName(l.cycle))
	var upstream []string
	for _, n := range u.Needs {
		if l.members[n] {
			n = BodyName(l.cycle, n)
			upstream = append(upstream, n)
		}
		if !slices.Contains(m.Needs, n) {
			m.Needs = append(m.Needs, n)
		}
	}

	for _, s := range u.Steps {
		m.Steps = append(m.Steps, ir.Step{
			Name: s.Name,
			ID:   s.ID,
			If:   l.rewrite(s.If),
			Uses: s.Uses,
			Run:  l.rewrite(s.Run),
			With: l.rewriteKVs(s.With),
			Env:  l.rewriteKVs(s.Env),
		})
	}

	outputs := make([]string, len(u.Outputs))
	capture := ir.Step{Name: "Capture outputs", ID: CaptureOutput}
	for i, up := range upstream {
		capture.Env = append(capture.Env, ir.KV{
			Key:   fmt.Sprintf("WP_UP_%d", i),
			Value: expr("needs." + up + ".outputs." + CaptureOutput),
		})
	}
	for i, o := range u.Outputs {
		outputs[i] = o.Key
		capture.Env = append(capture.Env, ir.KV{Key: fmt.Sprintf("WP_OUT_%d", i), Value: l.rewrite(o.Value)})
	}
	capture.Run = captureScript(u.Name, outputs, len(upstream))
	m.Steps = append(m.Steps, capture)

	m.Outputs = append(l.rewriteKVs(u.Outputs), ir.KV{
		Key:   CaptureOutput,
		Value: expr("steps." + CaptureOutput + ".outputs.json"),
	})
	return m
}

func (l *lowering) decide(terminal []string) ir.Unit {
	hydrate := HydrateName(l.cycle)
	needs := []string{hydrate}
	collect := ir.Step{
		Name: "Collect outputs",
		ID:   "collect",
		Env:  []ir.KV{{Key: "WP_STATE", Value: expr("needs." + hydrate + ".outputs.state")}},
	}
	for i, t := range terminal {
		member := BodyName(l.cycle, t)
		needs = append(needs, member)
		collect.Env = append(collect.Env, ir.KV{
			Key:   fmt.Sprintf("WP_CAPTURE_%d", i),
			Value: expr("needs." + member + ".outputs." + CaptureOutput),
		})
	}
	collect.Run = collectScript(l.cycle, len(terminal))

	steps := []ir.Step{collect}
	decide := ir.Step{Name: "Decide", ID: "decide", Run: decideScript(l.cycle, l.maxIters, l.predicate)}
	if l.predicate {
		steps = append(steps, ir.Step{Name: "Evaluate predicate", ID: "predicate", Run: predicateScript(l.until)})
		decide.Env = []ir.KV{{Key: "WP_SATISFIED", Value: expr("steps.predicate.outputs.satisfied")}}
	}
	steps = append(steps, decide, ir.Step{
		Name: "Upload state",
		Uses: UploadAction,
		With: []ir.KV{
			{Key: "name", Value: fmt.Sprintf("%s-%s-iter-%s-run-%s",
				l.opts.Namespace, l.cycle, expr("needs."+hydrate+".outputs.iteration"), expr("github.run_id"))},
			{Key: "path", Value: StateDir(l.cycle) + "/state.json"},
			{Key: "if-no-files-found", Value: "error"},
		},
	})

	return ir.Unit{
		Name:        DecideName(l.cycle),
		Phase:       ir.PhaseDecide,
		Cycle:       l.cycle,
		Needs:       needs,
		RunsOn:      l.opts.runsOn(),
		Concurrency: l.concurrency(),
		Env: []ir.KV{
			{Key: "WP_ITERATION", Value: expr("needs." + hydrate + ".outputs.iteration")},
			{Key: "WP_KEY", Value: expr("needs." + hydrate + ".outputs.key")},
		},
		Steps: steps,
		Outputs: []ir.KV{
			{Key: "done", Value: expr("steps.decide.outputs.done")},
			{Key: "continue", Value: expr("steps.decide.outputs.continue")},
			{Key: "iteration", Value: expr("steps.decide.outputs.iteration")},
			{Key: "key", Value: expr("steps.decide.outputs.key")},
		},
	}
}

func (l *lowering) dispatch() ir.Unit {
	decide := DecideName(l.cycle)
	return ir.Unit{
		Name:        DispatchName(l.cycle),
		Phase:       ir.PhaseDispatch,
		Cycle:       l.cycle,
		Needs:       []string{decide},
		If:          "needs." + decide + ".outputs.continue == 'true'",
		RunsOn:      l.opts.runsOn(),
		Concurrency: l.concurrency(),
		Env: []ir.KV{
			{Key: "GH_TOKEN", Value: "${{ github.token }}"},
			{Key: "WP_ITERATION", Value: expr("needs." + decide + ".outputs.iteration")},
			{Key: "WP_KEY", Value: expr("needs." + decide + ".outputs.key")},
		},
		Steps: []ir.Step{{Name: "Dispatch next iteration", Run: dispatchScript(l.cycle, l.opts.WorkflowFile)}},
	}
}

func expr(s string) string {
	return "${{ " + s + " }}"
}

// DispatchInputs are the manual-dispatch inputs every workflow with a
// lowered cycle declares.
func DispatchInputs() []ir.Input {
	return []ir.Input{
		{Name: protocol.InputConstruct, Description: "cycle to continue; empty runs the whole workflow"},
		{Name: protocol.InputIteration, Description: "iteration to run", Default: "0"},
		{Name: protocol.InputKey, Description: "concurrency key of the running cycle"},
		{Name: protocol.InputPrevRun, Description: "run that produced the previous state"},
	}
}

// Permissions are the token scopes the generated phases use: reading and
// uploading artifacts and dispatching the workflow again.
func Permissions() []ir.Permission {
	return []ir.Permission{
		{Scope: "actions", Level: "write"},
		{Scope: "contents", Level: "read"},
	}
}
