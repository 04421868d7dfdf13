package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryOrdersByDistance(t *testing.T) {
	ix := NewIndex()
	ix.Upsert("east", []float32{1, 0})
	ix.Upsert("north", []float32{0, 1})
	ix.Upsert("northeast", []float32{1, 1})

	got := ix.Query([]float32{1, 0}, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "east", got[0].ID)
	assert.Equal(t, "northeast", got[1].ID)
	assert.Equal(t, "north", got[2].ID)
	assert.InDelta(t, 0, got[0].Distance, 1e-9)
}

func TestQueryTiesBreakByInsertionOrder(t *testing.T) {
	ix := NewIndex()
	ix.Upsert("second", []float32{0, 1})
	ix.Upsert("first", []float32{0, 1})

	got := ix.Query([]float32{0, 1}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].ID)
	assert.Equal(t, "first", got[1].ID)
}

func TestUpsertReplaceKeepsInsertionOrder(t *testing.T) {
	ix := NewIndex()
	ix.Upsert("a", []float32{1, 0})
	ix.Upsert("b", []float32{1, 0})
	ix.Upsert("a", []float32{1, 0}) // replace, not reinsert

	require.Equal(t, 2, ix.Len())
	got := ix.Query([]float32{1, 0}, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestQueryMismatchedVectorsSortLast(t *testing.T) {
	ix := NewIndex()
	ix.Upsert("short", []float32{1})
	ix.Upsert("match", []float32{1, 0})

	got := ix.Query([]float32{1, 0}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "match", got[0].ID)
	assert.Equal(t, "short", got[1].ID)
	assert.Equal(t, 2.0, got[1].Distance)
}

func TestQueryLimitsAndEmpty(t *testing.T) {
	ix := NewIndex()
	assert.Nil(t, ix.Query([]float32{1}, 5))

	ix.Upsert("only", []float32{1})
	assert.Nil(t, ix.Query([]float32{1}, 0))
	assert.Len(t, ix.Query([]float32{1}, 5), 1)
}
