package changeset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_Basic(t *testing.T) {
	cs := NewBuilder().Retain(2).InsertStr("XY").Delete(3).Retain(1).Build()

	out, err := ApplyString(cs, "Hello!")
	require.NoError(t, err)
	assert.Equal(t, "HeXY!", out)
}

func TestApply_LengthMismatch(t *testing.T) {
	cs := NewBuilder().Retain(5).Build()

	_, err := ApplyString(cs, "abc")
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

// TestApply_OutputLenProperty is T1: |apply(cs, t)| == cs.OutputLen()
// whenever cs.InputLen() == len(t), over random change sets.
func TestApply_OutputLenProperty(t *testing.T) {
	for i := 0; i < 200; i++ {
		base := randomUTF16(50)
		cs := randomChangeSet(base)
		require.Equal(t, cs.InputLen(), len(base))

		out, err := Apply(cs, base)
		require.NoError(t, err)
		assert.Equal(t, cs.OutputLen(), len(out))
	}
}
