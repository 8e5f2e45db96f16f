package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillsync/quill/pkg/changeset"
	"github.com/quillsync/quill/pkg/revlog"
)

func TestClient_LocalEditUpdatesLocalText(t *testing.T) {
	c := New(changeset.EncodeUTF16("hello"), 0)

	edit := changeset.NewBuilder().Retain(5).InsertStr(" world").Build()
	require.NoError(t, c.ApplyLocalEdit(edit))

	text, err := c.LocalText()
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(changeset.DecodeUTF16(text)))
}

func TestClient_SubmissionLoopSingleFlight(t *testing.T) {
	c := New(changeset.EncodeUTF16("abc"), 0)

	_, ok := c.NextSubmission()
	assert.False(t, ok, "nothing pending yet")

	require.NoError(t, c.ApplyLocalEdit(changeset.NewBuilder().Retain(3).InsertStr("d").Build()))

	sub, ok := c.NextSubmission()
	require.True(t, ok)
	assert.Equal(t, 0, sub.OnRevision)

	// A second local edit while the first is in flight goes to pending,
	// not a second in-flight submission.
	require.NoError(t, c.ApplyLocalEdit(changeset.NewBuilder().Retain(4).InsertStr("e").Build()))

	_, ok = c.NextSubmission()
	assert.False(t, ok, "in_flight non-empty, submission loop must wait")
}

func TestClient_AckFlushesPending(t *testing.T) {
	c := New(changeset.EncodeUTF16("abc"), 0)

	require.NoError(t, c.ApplyLocalEdit(changeset.NewBuilder().Retain(3).InsertStr("d").Build()))
	sub, ok := c.NextSubmission()
	require.True(t, ok)

	require.NoError(t, c.ApplyLocalEdit(changeset.NewBuilder().Retain(4).InsertStr("e").Build()))

	require.NoError(t, c.Ack(1, nil))
	assert.Equal(t, 1, c.CommittedRevision())

	sub, ok = c.NextSubmission()
	require.True(t, ok)
	assert.Equal(t, 1, sub.OnRevision)

	text, err := changeset.ApplyString(sub.ChangeSet, "abcd")
	require.NoError(t, err)
	assert.Equal(t, "abcde", text)
}

func TestClient_DiscoveredRevisionsRebasesInFlightAndPending(t *testing.T) {
	c := New(changeset.EncodeUTF16("abc"), 0)

	require.NoError(t, c.ApplyLocalEdit(changeset.NewBuilder().Retain(3).InsertStr("X").Build()))
	_, ok := c.NextSubmission()
	require.True(t, ok)

	require.NoError(t, c.ApplyLocalEdit(changeset.NewBuilder().Retain(4).InsertStr("Y").Build()))

	// A foreign revision commits concurrently at the head the client's
	// in_flight edit was rooted at: insert "Z" at position 0.
	remote := changeset.NewBuilder().InsertStr("Z").Retain(3).Build()
	require.NoError(t, c.DiscoveredNewRevisions(1, []revlog.Revision{
		{Number: 1, AuthorID: "someone-else", ChangeSet: remote},
	}))

	text, err := c.LocalText()
	require.NoError(t, err)
	assert.Equal(t, "ZabcXY", string(changeset.DecodeUTF16(text)))
}

func TestClient_UndoRedoRoundTrip(t *testing.T) {
	c := New(changeset.EncodeUTF16("hello"), 0)

	require.NoError(t, c.ApplyLocalEdit(changeset.NewBuilder().Retain(5).InsertStr("!").Build()))
	text, err := c.LocalText()
	require.NoError(t, err)
	assert.Equal(t, "hello!", string(changeset.DecodeUTF16(text)))

	_, err = c.Undo()
	require.NoError(t, err)
	text, err = c.LocalText()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(changeset.DecodeUTF16(text)))

	_, err = c.Redo()
	require.NoError(t, err)
	text, err = c.LocalText()
	require.NoError(t, err)
	assert.Equal(t, "hello!", string(changeset.DecodeUTF16(text)))

	_, err = c.Redo()
	assert.ErrorIs(t, err, ErrNothingToRedo)
}

func TestClient_UndoTransposedAgainstForeignEdit(t *testing.T) {
	c := New(changeset.EncodeUTF16("hello"), 0)

	require.NoError(t, c.ApplyLocalEdit(changeset.NewBuilder().Retain(5).InsertStr("!").Build()))
	_, ok := c.NextSubmission()
	require.True(t, ok)
	require.NoError(t, c.Ack(1, nil))

	// A foreign edit inserts at the front after our "!" was committed.
	remote := changeset.NewBuilder().InsertStr(">> ").Retain(6).Build()
	require.NoError(t, c.DiscoveredNewRevisions(2, []revlog.Revision{
		{Number: 2, AuthorID: "someone-else", ChangeSet: remote},
	}))

	text, err := c.LocalText()
	require.NoError(t, err)
	assert.Equal(t, ">> hello!", string(changeset.DecodeUTF16(text)))

	// Undo should remove just our "!" insert, transposed to its new
	// position, leaving the foreign prefix intact.
	_, err = c.Undo()
	require.NoError(t, err)
	text, err = c.LocalText()
	require.NoError(t, err)
	assert.Equal(t, ">> hello", string(changeset.DecodeUTF16(text)))
}

func TestClient_SelectionTracksInserts(t *testing.T) {
	c := New(changeset.EncodeUTF16("hello"), 0)
	c.SetSelection(5, 5)

	require.NoError(t, c.ApplyLocalEdit(changeset.NewBuilder().Retain(5).InsertStr("!").Build()))

	start, end := c.Selection()
	assert.Equal(t, 6, start)
	assert.Equal(t, 6, end)
}
