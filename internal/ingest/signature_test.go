package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureStableUnderKeyOrder(t *testing.T) {
	a := Signature(map[string]string{"name": "Sara", "phone": "0612", "qty": "2"})
	b := Signature(map[string]string{"qty": "2", "phone": "0612", "name": "Sara"})
	assert.Equal(t, a, b)
}

func TestSignatureChangesWithCellEdit(t *testing.T) {
	before := Signature(map[string]string{"name": "Sara", "qty": "2"})
	after := Signature(map[string]string{"name": "Sara", "qty": "3"})
	assert.NotEqual(t, before, after)
}

func TestSignatureDistinguishesKeyValueBoundary(t *testing.T) {
	// "ab"="c" and "a"="bc" must not collide.
	a := Signature(map[string]string{"ab": "c"})
	b := Signature(map[string]string{"a": "bc"})
	assert.NotEqual(t, a, b)
}

func TestIdempotencyKey(t *testing.T) {
	sig := Signature(map[string]string{"name": "Sara"})

	k1 := IdempotencyKey("src-1", 2, sig)
	k2 := IdempotencyKey("src-1", 2, sig)
	require.Equal(t, k1, k2)

	assert.NotEqual(t, k1, IdempotencyKey("src-2", 2, sig), "different source must yield a different key")
	assert.NotEqual(t, k1, IdempotencyKey("src-1", 3, sig), "different row must yield a different key")

	edited := Signature(map[string]string{"name": "Sarah"})
	assert.NotEqual(t, k1, IdempotencyKey("src-1", 2, edited), "edited content must yield a different key")
}

func TestRenderRowSortsKeys(t *testing.T) {
	out := RenderRow(map[string]string{"phone": "0612", "name": "Sara"})
	assert.Equal(t, "name: Sara\nphone: 0612\n", out)
}
