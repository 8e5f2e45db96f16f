package changeset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvert_Basic(t *testing.T) {
	cs := NewBuilder().Retain(2).InsertStr("XY").Delete(3).Retain(1).Build()

	applied, err := ApplyString(cs, "Hello!")
	require.NoError(t, err)
	assert.Equal(t, "HeXY!", applied)

	inv, err := Invert(cs, EncodeUTF16("Hello!"))
	require.NoError(t, err)

	undone, err := ApplyString(inv, applied)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", undone)
}

// TestInvert_RoundTripProperty is T5: apply(invert(cs, t), apply(cs, t))
// == t.
func TestInvert_RoundTripProperty(t *testing.T) {
	for i := 0; i < 200; i++ {
		base := randomUTF16(40)
		cs := randomChangeSet(base)

		applied, err := Apply(cs, base)
		require.NoError(t, err)

		inv, err := Invert(cs, base)
		require.NoError(t, err)

		undone, err := Apply(inv, applied)
		require.NoError(t, err)

		assert.Equal(t, base, undone)
	}
}
