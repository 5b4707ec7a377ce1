package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestDeterminism(t *testing.T) {
	d1, err := Digest(sampleWorkflow())
	require.NoError(t, err)
	d2, err := Digest(sampleWorkflow())
	require.NoError(t, err)

	assert.Equal(t, d1, d2, "Digest must be deterministic")
	assert.Len(t, d1, 64, "SHA-256 hex is 64 characters")
}

func TestDigestSeesUnitOrder(t *testing.T) {
	w := sampleWorkflow()
	swapped := sampleWorkflow()
	swapped.Units[0], swapped.Units[2] = swapped.Units[2], swapped.Units[0]
	assert.NotEqual(t, MustDigest(w), MustDigest(swapped))
}

func TestDigestChangesWithContent(t *testing.T) {
	base := MustDigest(sampleWorkflow())

	tests := []struct {
		name   string
		mutate func(*Workflow)
	}{
		{"name", func(w *Workflow) { w.Name = "other" }},
		{"needs", func(w *Workflow) { w.Units[2].Needs = nil }},
		{"cap", func(w *Workflow) { w.States[0].MaxIters = nil }},
		{"concurrency", func(w *Workflow) { w.Concurrency.CancelInProgress = true }},
		{"step", func(w *Workflow) { w.Units[0].Steps = []Step{{Run: "make"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := sampleWorkflow()
			tt.mutate(w)
			assert.NotEqual(t, base, MustDigest(w))
		})
	}
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, hashWithDomain(DomainWorkflow, data), hashWithDomain(DomainState, data))
}

func TestWorkflowID(t *testing.T) {
	id1, err := WorkflowID(sampleWorkflow())
	require.NoError(t, err)
	id2, err := WorkflowID(sampleWorkflow())
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 5, int(id1.Version()))
}

func TestStateDigest(t *testing.T) {
	a, err := StateDigest([]byte(`{"key":"k","iteration":1}`))
	require.NoError(t, err)
	b, err := StateDigest([]byte(`{"iteration":1, "key":"k"}`))
	require.NoError(t, err)
	assert.Equal(t, a, b, "key order and whitespace do not matter")

	_, err = StateDigest([]byte(`{"iteration":null}`))
	assert.Error(t, err)
}
