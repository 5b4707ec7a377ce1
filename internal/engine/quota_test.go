package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchLedger_ChargesPerChain(t *testing.T) {
	l := newDispatchLedger(3)

	for i := range 3 {
		require.NoError(t, l.charge("review/refine@pr-1"), "dispatch %d", i+1)
	}
	// Another key is a separate chain with its own allowance.
	require.NoError(t, l.charge("review/refine@pr-2"))

	err := l.charge("review/refine@pr-1")
	var qe *QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, QuotaExceededError{Chain: "review/refine@pr-1", Dispatches: 4, Limit: 3}, *qe)
	assert.Equal(t, "chain review/refine@pr-1 exceeded dispatch quota: 4 dispatches > 3 limit", err.Error())

	assert.Equal(t, 4, l.usedBy("review/refine@pr-1"))
	assert.Equal(t, 1, l.usedBy("review/refine@pr-2"))
	assert.Zero(t, l.usedBy("poll/wait@nightly"))
}

func TestChainID(t *testing.T) {
	assert.Equal(t, "review/refine@pr-7", chainID(testConstruct(nil, true), "pr-7"))
}

func TestIsQuotaError(t *testing.T) {
	steps := &QuotaExceededError{Chain: "c", Dispatches: 2, Limit: 1}
	wrapped := newRuntimeError(ErrCodeQuotaExceeded, "run-1", phaseDispatch, steps, "dispatch refused")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"quota error", steps, true},
		{"runtime error", wrapped, true},
		{"wrapped runtime error", fmt.Errorf("run: %w", wrapped), true},
		{"other runtime error", &RuntimeError{Code: ErrCodeMissingArtifact}, false},
		{"plain error", fmt.Errorf("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuotaError(tt.err))
		})
	}
}

func TestRuntimeError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *RuntimeError
		want string
	}{
		{
			name: "code only",
			err:  &RuntimeError{Code: ErrCodeUnknownConstruct, Message: "no construct"},
			want: "UNKNOWN_CONSTRUCT: no construct",
		},
		{
			name: "with invocation",
			err:  &RuntimeError{Code: ErrCodeStateMismatch, Message: "bad key", Invocation: "run-2"},
			want: "STATE_MISMATCH: bad key (invocation=run-2)",
		},
		{
			name: "with phase and cause",
			err:  newRuntimeError(ErrCodeRunnerFailed, "run-3", phaseBody, fmt.Errorf("exit status 1"), "body unit %s", "lint"),
			want: "RUNNER_FAILED: body unit lint: exit status 1 (invocation=run-3, phase=body)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}
