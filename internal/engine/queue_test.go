package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepQueue_FIFO(t *testing.T) {
	q := newStepQueue()
	run := &invocationRun{}

	q.Enqueue(step{phase: phaseHydrate, run: run})
	q.Enqueue(step{phase: phaseBody, unit: "critique", run: run})
	q.Enqueue(step{phase: phaseDecide, run: run})
	assert.Equal(t, 3, q.Len())

	var got []string
	for {
		s, ok := q.TryDequeue()
		if !ok {
			break
		}
		got = append(got, s.phase.String()+s.unit)
	}
	assert.Equal(t, []string{"hydrate", "bodycritique", "decide"}, got)
	assert.Equal(t, 0, q.Len())
}

func TestStepQueue_TryDequeue_Empty(t *testing.T) {
	q := newStepQueue()
	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestStepQueue_ReusableAfterDrain(t *testing.T) {
	q := newStepQueue()
	q.Enqueue(step{phase: phaseHydrate})
	_, ok := q.TryDequeue()
	require.True(t, ok)

	q.Enqueue(step{phase: phaseDispatch})
	s, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, phaseDispatch, s.phase)
}

func TestPhase_String_PanicsOnUnknown(t *testing.T) {
	assert.Panics(t, func() { _ = phase(0).String() })
}
