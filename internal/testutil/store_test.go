package testutil

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStore_Fresh(t *testing.T) {
	s := OpenStore(t)
	seq, err := s.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Zero(t, seq)
}

func TestDiscardLogger(t *testing.T) {
	l := DiscardLogger()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
}
