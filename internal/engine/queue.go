package engine

import "fmt"

// phase is one job of a lowered cycle as the emulator executes it.
type phase uint8

const (
	phaseHydrate phase = iota + 1
	phaseBody
	phaseDecide
	phaseDispatch
)

func (p phase) String() string {
	switch p {
	case phaseHydrate:
		return "hydrate"
	case phaseBody:
		return "body"
	case phaseDecide:
		return "decide"
	case phaseDispatch:
		return "dispatch"
	default:
		panic(fmt.Sprintf("unknown phase %d", uint8(p)))
	}
}

// step is one queued phase of one claimed invocation. Body steps name the
// body unit they run.
type step struct {
	phase phase
	unit  string
	run   *invocationRun
}

// stepQueue is the FIFO of phase steps the Run loop drains.
//
// It is unbounded and not safe for concurrent use: only the Run loop
// enqueues and dequeues.
type stepQueue struct {
	steps []step
}

func newStepQueue() *stepQueue {
	return &stepQueue{steps: make([]step, 0, 16)}
}

// Enqueue adds a step to the back of the queue.
func (q *stepQueue) Enqueue(s step) {
	q.steps = append(q.steps, s)
}

// TryDequeue removes and returns the front step.
// Returns (step{}, false) if the queue is empty.
func (q *stepQueue) TryDequeue() (step, bool) {
	if len(q.steps) == 0 {
		return step{}, false
	}
	s := q.steps[0]

	// Nil out the slot so the run it points at can be collected.
	q.steps[0] = step{}
	if len(q.steps) == 1 {
		q.steps = q.steps[:0]
	} else {
		q.steps = q.steps[1:]
	}
	return s, true
}

// Len returns the current queue length.
func (q *stepQueue) Len() int {
	return len(q.steps)
}
