package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemGenerator_Ranges(t *testing.T) {
	seed := uint64(7)
	gen := newItemGenerator(NewSequentialGenerator("tx-"), &seed)

	items, err := gen.batch(1000)
	require.NoError(t, err)
	require.Len(t, items, 1000)

	for _, it := range items {
		assert.GreaterOrEqual(t, it.Amount(), 0.0)
		assert.Less(t, it.Amount(), float64(MaxAmount))
		assert.Greater(t, it.Priority(), 0.0)
		assert.Less(t, it.Priority(), 1.0)
	}
	assert.Equal(t, "tx-1", items[0].ID())
	assert.Equal(t, "tx-1000", items[999].ID())
}

func TestItemGenerator_SeedIsDeterministic(t *testing.T) {
	seed := uint64(42)
	a, err := newItemGenerator(NewSequentialGenerator("tx-"), &seed).batch(20)
	require.NoError(t, err)
	b, err := newItemGenerator(NewSequentialGenerator("tx-"), &seed).batch(20)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEngine_GenerateUsesSeedAndIDs(t *testing.T) {
	newEngine := func() *Engine {
		return New(nil, nil, WithSeed(9), WithIDGenerator(NewSequentialGenerator("job-")))
	}

	a, err := newEngine().Generate()
	require.NoError(t, err)
	b, err := newEngine().Generate()
	require.NoError(t, err)

	assert.Equal(t, "job-1", a.ID())
	assert.Equal(t, a, b)
}
