package collab

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillsync/quill/internal/protocol"
	"github.com/quillsync/quill/pkg/broadcast"
	"github.com/quillsync/quill/pkg/changeset"
	"github.com/quillsync/quill/pkg/document"
	"github.com/quillsync/quill/pkg/revlog/memory"
)

func newTestDocument(t *testing.T, initial string) (*Document, *broadcast.Memory) {
	t.Helper()
	log := memory.New()
	pub := broadcast.NewMemory()
	state := document.New(changeset.EncodeUTF16(initial), 0)
	return NewDocument("doc-1", state, log, pub), pub
}

func TestDocument_SubmitAtCurrentRevisionAcks(t *testing.T) {
	d, _ := newTestDocument(t, "hello")
	ctx := context.Background()

	cs := changeset.NewBuilder().Retain(5).InsertStr("!").Build()
	result, err := d.Submit(ctx, "alice", 0, cs)
	require.NoError(t, err)

	assert.Equal(t, protocol.ResponseAck, result.ResponseCode)
	assert.Equal(t, 1, result.LastRevisionNumber)

	rev, text := d.Snapshot()
	assert.Equal(t, 1, rev)
	assert.Equal(t, "hello!", string(changeset.DecodeUTF16(text)))
}

func TestDocument_SubmitBehindCurrentRevisionRebases(t *testing.T) {
	d, _ := newTestDocument(t, "hello")
	ctx := context.Background()

	_, err := d.Submit(ctx, "alice", 0, changeset.NewBuilder().Retain(5).InsertStr("!").Build())
	require.NoError(t, err)

	// Bob submits still rooted at revision 0, racing Alice.
	bobEdit := changeset.NewBuilder().InsertStr(">> ").Retain(5).Build()
	result, err := d.Submit(ctx, "bob", 0, bobEdit)
	require.NoError(t, err)

	assert.Equal(t, protocol.ResponseDiscoveredNewRevisions, result.ResponseCode)
	assert.Equal(t, 2, result.LastRevisionNumber)
	require.Len(t, result.Revisions, 2) // Alice's historical rev + Bob's newly committed one

	_, text := d.Snapshot()
	assert.Equal(t, ">> hello!", string(changeset.DecodeUTF16(text)))
}

func TestDocument_SubmitAheadOfCurrentRevisionFails(t *testing.T) {
	d, _ := newTestDocument(t, "hello")
	ctx := context.Background()

	_, err := d.Submit(ctx, "alice", 5, changeset.NewBuilder().Retain(5).Build())
	assert.ErrorIs(t, err, ErrInvalidRevision)
}

func TestDocument_SubmitBroadcastsToOtherSubscribers(t *testing.T) {
	d, pub := newTestDocument(t, "hello")
	ctx := context.Background()

	ch, unsubscribe := pub.Subscribe("doc-1")
	defer unsubscribe()

	_, err := d.Submit(ctx, "alice", 0, changeset.NewBuilder().Retain(5).InsertStr("!").Build())
	require.NoError(t, err)

	rev := <-ch
	assert.Equal(t, 1, rev.Number)
	assert.Equal(t, "alice", rev.AuthorID)
}

func TestDocument_RetriedSubmitIsIdempotent(t *testing.T) {
	d, _ := newTestDocument(t, "hello")
	ctx := context.Background()

	cs := changeset.NewBuilder().Retain(5).InsertStr("!").Build()
	first, err := d.Submit(ctx, "alice", 0, cs)
	require.NoError(t, err)

	// The same session retries the same submission (simulating a
	// timed-out RPC whose response never arrived).
	second, err := d.Submit(ctx, "alice", 0, cs)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	rev, _ := d.Snapshot()
	assert.Equal(t, 1, rev, "a retried submit must not double-commit")
}

func TestDocument_ConcurrentSubmitsAreSerialized(t *testing.T) {
	d, _ := newTestDocument(t, "")
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cs := changeset.NewBuilder().InsertStr("x").Build()
			_, err := d.Submit(ctx, sessionName(i), 0, cs)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	rev, text := d.Snapshot()
	assert.Equal(t, n, rev)
	assert.Equal(t, n, len(text))
}

func sessionName(i int) string {
	return fmt.Sprintf("session-%d", i)
}
