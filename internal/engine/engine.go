package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cameron5906/workpipe/internal/ir"
	"github.com/cameron5906/workpipe/internal/protocol"
	"github.com/cameron5906/workpipe/internal/store"
)

// Trace event kinds, in the order one invocation emits them.
const (
	EventQueued   = "queued"
	EventStarted  = "started"
	EventHydrate  = "hydrate"
	EventBody     = "body"
	EventDecide   = "decide"
	EventArtifact = "artifact"
	EventDispatch = "dispatch"
	EventDone     = "done"
	EventFailed   = "failed"
)

// DefaultMaxSteps is the default dispatch quota per chain.
const DefaultMaxSteps = 100

// Runner supplies what a real host would compute: the outputs of body
// units and the value of the termination predicate.
type Runner interface {
	Body(ctx context.Context, call BodyCall) (map[string]string, error)
	Predicate(ctx context.Context, call PredicateCall) (bool, error)
}

// BodyCall asks for the outputs of one body unit in one iteration. State
// is the hydrated state and must not be modified.
type BodyCall struct {
	Workflow  string
	Cycle     string
	Unit      string
	Key       string
	Iteration int
	State     protocol.State
}

// PredicateCall asks for the value of the termination predicate after the
// body of one iteration ran.
type PredicateCall struct {
	Workflow  string
	Cycle     string
	Key       string
	Iteration int
	State     protocol.State
}

// Engine is the single-writer protocol emulator.
//
// Thread-safety model: Start and Run must not be called concurrently.
type Engine struct {
	store      *store.Store
	runner     Runner
	ids        IDGenerator
	clock      *Clock
	queue      *stepQueue
	constructs map[string]Construct
	logger     *slog.Logger

	maxSteps int
	ledger   *dispatchLedger
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxSteps sets the dispatch quota per chain.
func WithMaxSteps(maxSteps int) EngineOption {
	return func(e *Engine) {
		e.maxSteps = maxSteps
	}
}

// WithClock replaces the clock, typically with NewClockAt(store.LastSeq)
// to continue an existing trace.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine that persists to s and asks runner for body
// outputs and predicate values.
func New(s *store.Store, runner Runner, ids IDGenerator, opts ...EngineOption) *Engine {
	e := &Engine{
		store:      s,
		runner:     runner,
		ids:        ids,
		clock:      NewClockAt(0),
		queue:      newStepQueue(),
		constructs: make(map[string]Construct),
		logger:     slog.New(slog.DiscardHandler),
		maxSteps:   DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.ledger = newDispatchLedger(e.maxSteps)
	return e
}

// Register makes c runnable. Start registers its construct implicitly;
// Register is needed to run invocations queued by an earlier process.
func (e *Engine) Register(c Construct) {
	e.constructs[c.id()] = c
}

// MaxSteps returns the configured dispatch quota per chain.
func (e *Engine) MaxSteps() int {
	return e.maxSteps
}

// Start queues iteration 0 of c for key, as a trigger event would, and
// returns the new invocation id. It does not execute anything; Run does.
func (e *Engine) Start(ctx context.Context, c Construct, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("start %s: empty concurrency key", c.Cycle())
	}
	e.Register(c)
	inv := store.Invocation{
		ID:       e.ids.Generate(),
		Workflow: c.Workflow,
		Cycle:    c.Cycle(),
		Key:      key,
	}
	if err := e.enqueueInvocation(ctx, inv); err != nil {
		return "", fmt.Errorf("start %s: %w", c.Cycle(), err)
	}
	return inv.ID, nil
}

// Run executes queued invocations until none is runnable.
//
// Each round claims every runnable invocation (one per concurrency key),
// queues their phase steps and drains the queue. A failed invocation is
// logged and recorded in the trace; Run continues with the others and
// returns every failure joined.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Debug("engine starting")

	var errs []error
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}

		claimed, err := e.claimRound(ctx, &errs)
		if err != nil {
			return errors.Join(append(errs, err)...)
		}
		if claimed == 0 {
			break
		}

		for {
			st, ok := e.queue.TryDequeue()
			if !ok {
				break
			}
			if err := e.processStep(ctx, st); err != nil {
				errs = append(errs, err)
			}
		}
	}

	e.logger.Debug("engine idle", "seq", e.clock.Last())
	return errors.Join(errs...)
}

// claimRound claims runnable invocations and queues their steps. Returns
// how many were claimed. Invocations that fail before any step runs are
// appended to failures.
func (e *Engine) claimRound(ctx context.Context, failures *[]error) (int, error) {
	n := 0
	for {
		inv, ok, err := e.store.Claim(ctx)
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		n++

		if err := e.appendEvent(ctx, inv.ID, EventStarted, ir.Object{
			"iteration": ir.Int(inv.Iteration),
		}); err != nil {
			return n, err
		}

		c, known := e.constructs[inv.Workflow+"/"+inv.Cycle]
		run := &invocationRun{inv: inv, construct: c}
		if !known {
			cause := newRuntimeError(ErrCodeUnknownConstruct, inv.ID, 0, nil,
				"no construct registered for %s/%s", inv.Workflow, inv.Cycle)
			if err := e.fail(ctx, run, cause); err != nil {
				return n, err
			}
			*failures = append(*failures, cause)
			continue
		}

		e.queue.Enqueue(step{phase: phaseHydrate, run: run})
		for _, cu := range c.Schema.Captured {
			e.queue.Enqueue(step{phase: phaseBody, unit: cu.Unit, run: run})
		}
		e.queue.Enqueue(step{phase: phaseDecide, run: run})
		e.queue.Enqueue(step{phase: phaseDispatch, run: run})
	}
}

// invocationRun is the in-memory progress of one claimed invocation.
type invocationRun struct {
	inv       store.Invocation
	construct Construct
	state     protocol.State
	decision  protocol.Decision
	failed    bool
}

// processStep executes one phase. Steps of an invocation that already
// failed are skipped.
func (e *Engine) processStep(ctx context.Context, st step) error {
	run := st.run
	if run.failed {
		return nil
	}

	var err error
	switch st.phase {
	case phaseHydrate:
		err = e.hydrate(ctx, run)
	case phaseBody:
		err = e.body(ctx, run, st.unit)
	case phaseDecide:
		err = e.decide(ctx, run)
	case phaseDispatch:
		err = e.dispatch(ctx, run)
		if err == nil {
			err = e.finish(ctx, run)
		}
	default:
		panic(fmt.Sprintf("unknown phase %d", uint8(st.phase)))
	}
	if err == nil {
		return nil
	}

	e.logger.Error("invocation failed",
		"invocation", run.inv.ID,
		"cycle", run.inv.Cycle,
		"key", run.inv.Key,
		"iteration", run.inv.Iteration,
		"phase", st.phase.String(),
		"error", err,
	)
	if ferr := e.fail(ctx, run, err); ferr != nil {
		return errors.Join(err, ferr)
	}
	return err
}

// hydrate restores the state the invocation starts from. Iteration 0
// starts from the initial state; every later iteration reads the artifact
// its predecessor wrote.
func (e *Engine) hydrate(ctx context.Context, run *invocationRun) error {
	inv := run.inv
	schema := run.construct.Schema

	if inv.Iteration == 0 {
		run.state = protocol.Initial(inv.Key, schema.MaxIters)
		return e.appendEvent(ctx, inv.ID, EventHydrate, ir.Object{
			"iteration": ir.Int(0),
			"restored":  ir.String(""),
		})
	}

	name := protocol.ArtifactName(run.construct.Namespace, inv.Cycle, inv.Iteration-1, inv.PrevRun)
	art, err := e.store.ReadArtifact(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return newRuntimeError(ErrCodeMissingArtifact, inv.ID, phaseHydrate, err,
			"no state artifact %s", name)
	}
	if err != nil {
		return err
	}

	restored, err := protocol.Unmarshal(art.State)
	if err != nil {
		return newRuntimeError(ErrCodeStateMismatch, inv.ID, phaseHydrate, err,
			"artifact %s", name)
	}
	if restored.Key != inv.Key || restored.Iteration != inv.Iteration-1 {
		return newRuntimeError(ErrCodeStateMismatch, inv.ID, phaseHydrate, nil,
			"artifact %s holds key %q iteration %d, want key %q iteration %d",
			name, restored.Key, restored.Iteration, inv.Key, inv.Iteration-1)
	}

	run.state = protocol.Next(restored, inv.PrevRun)
	return e.appendEvent(ctx, inv.ID, EventHydrate, ir.Object{
		"iteration": ir.Int(run.state.Iteration),
		"restored":  ir.String(name),
	})
}

// body runs one body unit and captures its declared outputs. A declared
// output the runner leaves out is captured as the empty string, as a real
// job output would be.
func (e *Engine) body(ctx context.Context, run *invocationRun, unit string) error {
	inv := run.inv
	outputs, err := e.runner.Body(ctx, BodyCall{
		Workflow:  inv.Workflow,
		Cycle:     inv.Cycle,
		Unit:      unit,
		Key:       inv.Key,
		Iteration: run.state.Iteration,
		State:     run.state,
	})
	if err != nil {
		return newRuntimeError(ErrCodeRunnerFailed, inv.ID, phaseBody, err, "body unit %s", unit)
	}

	captured := ir.Object{}
	for _, cu := range run.construct.Schema.Captured {
		if cu.Unit != unit {
			continue
		}
		for _, out := range cu.Outputs {
			v := outputs[out]
			run.state.Capture(unit, out, v)
			captured[out] = ir.String(v)
		}
	}
	return e.appendEvent(ctx, inv.ID, EventBody, ir.Object{
		"unit":    ir.String(unit),
		"outputs": captured,
	})
}

// decide applies the termination rule and persists the state artifact of
// this iteration.
func (e *Engine) decide(ctx context.Context, run *invocationRun) error {
	inv := run.inv
	schema := run.construct.Schema

	var predicate *bool
	if schema.Predicate {
		v, err := e.runner.Predicate(ctx, PredicateCall{
			Workflow:  inv.Workflow,
			Cycle:     inv.Cycle,
			Key:       inv.Key,
			Iteration: run.state.Iteration,
			State:     run.state,
		})
		if err != nil {
			return newRuntimeError(ErrCodeRunnerFailed, inv.ID, phaseDecide, err, "predicate")
		}
		predicate = &v
	}

	d := protocol.Decide(run.state, run.state.Cap(), predicate)
	run.decision = d
	run.state.Done = d.Done
	if err := e.appendEvent(ctx, inv.ID, EventDecide, ir.Object{
		"iteration": ir.Int(d.Iteration),
		"satisfied": ir.Bool(d.Satisfied),
		"rail":      ir.Bool(d.Rail),
		"done":      ir.Bool(d.Done),
		"continue":  ir.Bool(d.Continue),
	}); err != nil {
		return err
	}

	data, err := run.state.Marshal()
	if err != nil {
		return fmt.Errorf("marshal state of %s: %w", inv.ID, err)
	}
	digest, err := ir.StateDigest(data)
	if err != nil {
		return fmt.Errorf("digest state of %s: %w", inv.ID, err)
	}
	name := protocol.ArtifactName(run.construct.Namespace, inv.Cycle, run.state.Iteration, inv.ID)
	if err := e.store.WriteArtifact(ctx, store.Artifact{
		Name:         name,
		InvocationID: inv.ID,
		Cycle:        inv.Cycle,
		Key:          inv.Key,
		Iteration:    run.state.Iteration,
		State:        data,
		Digest:       digest,
		Seq:          e.clock.Tick(),
	}); err != nil {
		return err
	}
	return e.appendEvent(ctx, inv.ID, EventArtifact, ir.Object{
		"name": ir.String(name),
	})
}

// dispatch queues the next iteration when decide said to continue.
func (e *Engine) dispatch(ctx context.Context, run *invocationRun) error {
	if !run.decision.Continue {
		return nil
	}
	inv := run.inv

	if err := e.ledger.charge(chainID(run.construct, inv.Key)); err != nil {
		return newRuntimeError(ErrCodeQuotaExceeded, inv.ID, phaseDispatch, err,
			"dispatch refused after %d iterations", run.state.Iteration+1)
	}

	next := protocol.Next(run.state, inv.ID)
	nextInv := store.Invocation{
		ID:        e.ids.Generate(),
		Workflow:  inv.Workflow,
		Cycle:     inv.Cycle,
		Key:       next.Key,
		Iteration: next.Iteration,
		PrevRun:   next.PrevInvocationID,
	}

	inputs := ir.Object{}
	for _, kv := range protocol.DispatchInputs(inv.Cycle, next) {
		inputs[kv[0]] = ir.String(kv[1])
	}
	if err := e.appendEvent(ctx, inv.ID, EventDispatch, ir.Object{
		"next":   ir.String(nextInv.ID),
		"inputs": inputs,
	}); err != nil {
		return err
	}
	return e.enqueueInvocation(ctx, nextInv)
}

// finish marks a run done.
func (e *Engine) finish(ctx context.Context, run *invocationRun) error {
	if err := e.store.Finish(ctx, run.inv.ID, store.StatusDone); err != nil {
		return err
	}
	e.logger.Info("invocation done",
		"invocation", run.inv.ID,
		"cycle", run.inv.Cycle,
		"key", run.inv.Key,
		"iteration", run.inv.Iteration,
		"continue", run.decision.Continue,
	)
	return e.appendEvent(ctx, run.inv.ID, EventDone, ir.Object{
		"iteration": ir.Int(run.inv.Iteration),
	})
}

// fail marks a run failed and records why.
func (e *Engine) fail(ctx context.Context, run *invocationRun, cause error) error {
	run.failed = true
	detail := ir.Object{"message": ir.String(cause.Error())}
	if code := ErrorCode(cause); code != "" {
		detail["code"] = ir.String(string(code))
	}
	if err := e.store.Finish(ctx, run.inv.ID, store.StatusFailed); err != nil {
		return err
	}
	return e.appendEvent(ctx, run.inv.ID, EventFailed, detail)
}

// enqueueInvocation writes a queued invocation and its trace event.
func (e *Engine) enqueueInvocation(ctx context.Context, inv store.Invocation) error {
	inv.Seq = e.clock.Tick()
	inv.Status = store.StatusQueued
	if err := e.store.WriteInvocation(ctx, inv); err != nil {
		return err
	}
	e.logger.Debug("invocation queued",
		"invocation", inv.ID,
		"cycle", inv.Cycle,
		"key", inv.Key,
		"iteration", inv.Iteration,
	)
	return e.appendEvent(ctx, inv.ID, EventQueued, ir.Object{
		"cycle":     ir.String(inv.Cycle),
		"key":       ir.String(inv.Key),
		"iteration": ir.Int(inv.Iteration),
		"prev_run":  ir.String(inv.PrevRun),
	})
}

func (e *Engine) appendEvent(ctx context.Context, invocationID, kind string, detail ir.Object) error {
	return e.store.AppendEvent(ctx, store.Event{
		Seq:          e.clock.Tick(),
		InvocationID: invocationID,
		Kind:         kind,
		Detail:       detail,
	})
}
