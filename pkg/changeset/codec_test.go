package changeset

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_JSONRoundTrip(t *testing.T) {
	cs := NewBuilder().Retain(2).InsertStr("héllo").Delete(3).Retain(4).Build()

	data, err := json.Marshal(cs)
	require.NoError(t, err)

	var decoded ChangeSet
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.True(t, cs.Equal(&decoded))
	assert.Equal(t, cs.InputLen(), decoded.InputLen())
	assert.Equal(t, cs.OutputLen(), decoded.OutputLen())
}

func TestCodec_JSONRejectsUnknownDiscriminator(t *testing.T) {
	var decoded ChangeSet
	err := json.Unmarshal([]byte(`[{"op":9,"n":3}]`), &decoded)
	assert.ErrorIs(t, err, ErrMalformedChangeSet)
}

func TestCodec_JSONRejectsOutOfRangeUnit(t *testing.T) {
	var decoded ChangeSet
	err := json.Unmarshal([]byte(`[{"op":2,"units":[70000]}]`), &decoded)
	assert.ErrorIs(t, err, ErrMalformedChangeSet)
}

func TestCodec_BinaryRoundTrip(t *testing.T) {
	cs := NewBuilder().Retain(2).InsertStr("abc").Delete(5).Retain(1).Build()

	data, err := cs.MarshalBinary()
	require.NoError(t, err)

	var decoded ChangeSet
	require.NoError(t, decoded.UnmarshalBinary(data))

	assert.True(t, cs.Equal(&decoded))
}

// TestCodec_BinaryRoundTripProperty round-trips a batch of random change
// sets through the binary encoding used for the revision log's BLOB
// column.
func TestCodec_BinaryRoundTripProperty(t *testing.T) {
	for i := 0; i < 100; i++ {
		base := randomUTF16(30)
		cs := randomChangeSet(base)

		data, err := cs.MarshalBinary()
		require.NoError(t, err)

		var decoded ChangeSet
		require.NoError(t, decoded.UnmarshalBinary(data))

		assert.True(t, cs.Equal(&decoded))
	}
}
