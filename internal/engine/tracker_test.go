package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txsim/internal/ir"
)

func TestStatusTracker_Lifecycle(t *testing.T) {
	tr := newStatusTracker()
	require.NoError(t, tr.admissible("tx-1"))
	tr.admit("tx-1")

	for _, to := range []ir.Status{ir.StatusProcessing, ir.StatusRetrying, ir.StatusProcessing, ir.StatusCompleted} {
		_, err := tr.move("tx-1", to)
		require.NoError(t, err, "move to %s", to)
	}

	s, ok := tr.get("tx-1")
	require.True(t, ok)
	assert.Equal(t, ir.StatusCompleted, s)
}

func TestStatusTracker_RefusesLeavingTerminal(t *testing.T) {
	tr := newStatusTracker()
	tr.admit("tx-1")
	_, err := tr.move("tx-1", ir.StatusProcessing)
	require.NoError(t, err)
	_, err = tr.move("tx-1", ir.StatusFailedPermanently)
	require.NoError(t, err)

	_, err = tr.move("tx-1", ir.StatusCompleted)
	assert.Error(t, err)
	assert.Error(t, tr.admissible("tx-1"))
}

func TestStatusTracker_ReleaseToPending(t *testing.T) {
	tr := newStatusTracker()
	tr.admit("tx-1")

	from, err := tr.move("tx-1", ir.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusPending, from)

	_, err = tr.move("tx-1", ir.StatusProcessing)
	require.NoError(t, err)
	_, err = tr.move("tx-1", ir.StatusPending)
	require.NoError(t, err)
	assert.NoError(t, tr.admissible("tx-1"))
}

func TestStatusTracker_UnknownAndReset(t *testing.T) {
	tr := newStatusTracker()
	_, err := tr.move("ghost", ir.StatusProcessing)
	assert.Error(t, err)

	tr.admit("tx-1")
	tr.reset()
	_, ok := tr.get("tx-1")
	assert.False(t, ok)
}
