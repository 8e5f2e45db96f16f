package changeset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransform_InputLenMismatch(t *testing.T) {
	a := NewBuilder().Retain(5).Build()
	b := NewBuilder().Retain(3).Build()

	_, _, err := Transform(a, b)
	assert.ErrorIs(t, err, ErrTransformMismatch)
}

func TestTransform_InsertTieBreak(t *testing.T) {
	// Both sides insert at position 0 of a 3-unit base. Per the tie-break,
	// a's insert must land before b's in both composition orders.
	base := []uint16{'x', 'y', 'z'}
	a := NewBuilder().InsertStr("A").Retain(3).Build()
	b := NewBuilder().InsertStr("B").Retain(3).Build()

	aPrime, bPrime, err := Transform(a, b)
	require.NoError(t, err)

	viaA, err := Apply(a, base)
	require.NoError(t, err)
	viaA, err = Apply(bPrime, viaA)
	require.NoError(t, err)

	viaB, err := Apply(b, base)
	require.NoError(t, err)
	viaB, err = Apply(aPrime, viaB)
	require.NoError(t, err)

	assert.Equal(t, viaA, viaB)
	assert.Equal(t, []uint16{'A', 'B', 'x', 'y', 'z'}, viaA)
}

// TestTransform_ConvergenceProperty is T4 (TP1): for any a, b with equal
// InputLen, let (a', b') = transform(a, b); then
// apply(compose(a, b'), t) == apply(compose(b, a'), t).
func TestTransform_ConvergenceProperty(t *testing.T) {
	for i := 0; i < 200; i++ {
		base := randomUTF16(40)
		a := randomChangeSet(base)
		b := randomChangeSet(base)

		aPrime, bPrime, err := Transform(a, b)
		require.NoError(t, err)

		left, err := Compose(a, bPrime)
		require.NoError(t, err)
		right, err := Compose(b, aPrime)
		require.NoError(t, err)

		lhs, err := Apply(left, base)
		require.NoError(t, err)
		rhs, err := Apply(right, base)
		require.NoError(t, err)

		assert.Equal(t, rhs, lhs)
	}
}
