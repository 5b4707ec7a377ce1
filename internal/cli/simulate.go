package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cameron5906/workpipe/internal/compiler"
	"github.com/cameron5906/workpipe/internal/engine"
	"github.com/cameron5906/workpipe/internal/ir"
	"github.com/cameron5906/workpipe/internal/store"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Workflow  string   // workflow name, when the cycle name is ambiguous
	Keys      []string // concurrency keys to start
	SatisfyAt int      // first iteration whose predicate holds; -1 never
	Outputs   []string // unit.output=value captured by every body run
	Database  string
	MaxSteps  int
}

// SimulatedEvent is one trace record of a simulation.
type SimulatedEvent struct {
	Seq        int64     `json:"seq"`
	Invocation string    `json:"invocation"`
	Kind       string    `json:"kind"`
	Detail     ir.Object `json:"detail"`
}

// SimulateResult is the simulate command's JSON payload.
type SimulateResult struct {
	Workflow  string           `json:"workflow"`
	Cycle     string           `json:"cycle"`
	Namespace string           `json:"namespace"`
	Events    []SimulatedEvent `json:"events"`
	Failures  []string         `json:"failures,omitempty"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <dir> <cycle>",
		Short: "Run a cycle's dispatch protocol offline",
		Long: `Compile a directory and run one cycle through the protocol emulator.

Every body unit captures the values given with --output (empty otherwise).
The until predicate holds from iteration --satisfy-at on. Invocations,
artifacts and trace events are kept in the emulator database, so repeated
simulations extend the same trace.

Exit codes:
  0 - Every chain finished
  1 - An invocation failed (missing artifact, quota, ...)
  2 - Command error

Examples:
  workpipe simulate ./workflows refine
  workpipe simulate ./workflows refine --key pr-1 --key pr-2 --satisfy-at 1
  workpipe simulate ./workflows refine --output critique.score=9 --db :memory:`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Workflow, "workflow", "", "workflow name holding the cycle")
	cmd.Flags().StringArrayVar(&opts.Keys, "key", []string{"main"}, "concurrency key to start (repeatable)")
	cmd.Flags().IntVar(&opts.SatisfyAt, "satisfy-at", -1, "first iteration whose until predicate holds (-1: never)")
	cmd.Flags().StringArrayVar(&opts.Outputs, "output", nil, "captured body output as unit.output=value (repeatable)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "emulator database (default: engine.database of workpipe.yaml)")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "dispatch quota per chain (default: engine.quota of workpipe.yaml)")

	return cmd
}

func runSimulate(opts *SimulateOptions, dir, cycle string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	logger := opts.Logger(cmd)

	runner, err := newFixedRunner(opts.Outputs, opts.SatisfyAt)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --output", err)
	}

	p, err := loadProject(dir, opts.RootOptions, logger)
	if err != nil {
		return err
	}
	res, err := p.compile(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "compilation aborted", err)
	}
	if res.HasErrors() {
		views := viewDiagnostics(res.Diagnostics(), p.Workspace.Sources)
		if formatter.JSON() {
			_ = formatter.Error("E_DIAGNOSTICS", "workflow sources have errors", views)
		} else {
			writeDiagnostics(formatter.Writer, views, p.Workspace.Sources)
		}
		return NewExitError(ExitFailure, "workflow sources have errors")
	}

	construct, err := findConstruct(res.Files, opts.Workflow, cycle)
	if err != nil {
		return WrapExitError(ExitCommandError, "cycle not found", err)
	}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = p.Config.Engine.Database
		if !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(dir, dbPath)
		}
	}
	st, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = p.Config.Engine.Quota
	}
	last, err := st.LastSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read database", err)
	}
	eng := engine.New(st, runner, engine.UUIDv7Generator{},
		engine.WithMaxSteps(maxSteps),
		engine.WithClock(engine.NewClockAt(last)),
		engine.WithLogger(logger),
	)

	for _, key := range opts.Keys {
		id, err := eng.Start(ctx, construct, key)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start chain", err)
		}
		logger.Debug("chain started", "key", key, "invocation", id)
	}
	runErr := eng.Run(ctx)
	if ctx.Err() != nil {
		return WrapExitError(ExitCommandError, "simulation interrupted", ctx.Err())
	}

	events, err := st.Events(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}
	result := SimulateResult{
		Workflow:  construct.Workflow,
		Cycle:     construct.Cycle(),
		Namespace: construct.Namespace,
		Events:    []SimulatedEvent{},
	}
	for _, ev := range events {
		if ev.Seq <= last {
			continue
		}
		result.Events = append(result.Events, SimulatedEvent{
			Seq:        ev.Seq,
			Invocation: ev.InvocationID,
			Kind:       ev.Kind,
			Detail:     ev.Detail,
		})
		if ev.Kind == engine.EventFailed {
			msg, _ := ev.Detail["message"].(ir.String)
			result.Failures = append(result.Failures, string(msg))
		}
	}

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		writeSimulation(formatter, result)
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d invocation(s) failed", len(result.Failures)), runErr)
	}
	return nil
}

func writeSimulation(f *OutputFormatter, r SimulateResult) {
	w := f.Writer
	fmt.Fprintf(w, "Simulating %s/%s (namespace %s)\n\n", r.Workflow, r.Cycle, r.Namespace)
	for _, ev := range r.Events {
		detail, err := ir.MarshalCanonical(ev.Detail)
		if err != nil {
			detail = []byte("{}")
		}
		fmt.Fprintf(w, "[%d] %s %-8s %s\n", ev.Seq, ev.Invocation, ev.Kind, detail)
	}
	fmt.Fprintln(w)
	if len(r.Failures) > 0 {
		fmt.Fprintf(w, "✗ %d invocation(s) failed\n", len(r.Failures))
		for _, msg := range r.Failures {
			fmt.Fprintf(w, "  %s\n", msg)
		}
		return
	}
	fmt.Fprintln(w, "✓ All chains finished")
}

// findConstruct picks the cycle among the compiled workflows. The cycle
// name must be unique unless workflow narrows the search.
func findConstruct(files []*compiler.Result, workflow, cycle string) (engine.Construct, error) {
	var found []engine.Construct
	for _, f := range files {
		if f.Workflow == nil || (workflow != "" && f.Workflow.Name != workflow) {
			continue
		}
		for _, st := range f.Workflow.States {
			if st.Cycle != cycle {
				continue
			}
			c, err := engine.ConstructFor(f.Workflow, cycle)
			if err != nil {
				return engine.Construct{}, err
			}
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return engine.Construct{}, fmt.Errorf("no cycle %q", cycle)
	case 1:
		return found[0], nil
	default:
		names := make([]string, len(found))
		for i, c := range found {
			names[i] = c.Workflow
		}
		return engine.Construct{}, fmt.Errorf("cycle %q is declared by workflows %s; pick one with --workflow",
			cycle, strings.Join(names, ", "))
	}
}

// openStore opens the emulator database, creating its directory.
func openStore(path string) (*store.Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create database directory", err)
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// fixedRunner answers every body run with the same outputs.
type fixedRunner struct {
	outputs   map[string]map[string]string
	satisfyAt int
}

func newFixedRunner(pairs []string, satisfyAt int) (*fixedRunner, error) {
	r := &fixedRunner{outputs: make(map[string]map[string]string), satisfyAt: satisfyAt}
	for _, p := range pairs {
		ref, value, ok := strings.Cut(p, "=")
		unit, out, dot := strings.Cut(ref, ".")
		if !ok || !dot || unit == "" || out == "" {
			return nil, fmt.Errorf("%q: want unit.output=value", p)
		}
		if r.outputs[unit] == nil {
			r.outputs[unit] = make(map[string]string)
		}
		r.outputs[unit][out] = value
	}
	return r, nil
}

func (r *fixedRunner) Body(_ context.Context, call engine.BodyCall) (map[string]string, error) {
	return r.outputs[call.Unit], nil
}

func (r *fixedRunner) Predicate(_ context.Context, call engine.PredicateCall) (bool, error) {
	return r.satisfyAt >= 0 && call.Iteration >= r.satisfyAt, nil
}
