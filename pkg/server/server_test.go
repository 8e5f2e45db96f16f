package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/stretchr/testify/require"

	"github.com/quillsync/quill/internal/protocol"
	"github.com/quillsync/quill/pkg/broadcast"
	"github.com/quillsync/quill/pkg/changeset"
	"github.com/quillsync/quill/pkg/storage/sqlite"
)

// testServer creates a server backed by an in-memory SQLite store and an
// in-memory broadcast bus, and pre-creates a document for docID.
func testServer(t *testing.T, docID string) *Server {
	t.Helper()

	store, err := sqlite.Open("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Now()
	require.NoError(t, store.CreateDocument(context.Background(), sqlite.Document{
		ID: docID, OwnerID: "owner", Title: "Untitled", CreatedAt: now, UpdatedAt: now,
	}))

	hub := NewHub(store, broadcast.NewMemory())
	return NewServer(hub)
}

func connectWebSocket(t *testing.T, ts *httptest.Server, docID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/socket/" + docID
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readServerMsg(t *testing.T, conn *websocket.Conn) *protocol.ServerMsg {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var msg protocol.ServerMsg
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return &msg
}

func sendClientMsg(t *testing.T, conn *websocket.Conn, msg *protocol.ClientMsg) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

// insertAt builds a change set that inserts text at pos into a document
// whose current length is totalLen code units.
func insertAt(pos int, text string, totalLen int) *changeset.ChangeSet {
	b := changeset.NewBuilder()
	b.Retain(pos)
	b.InsertStr(text)
	b.Retain(totalLen - pos)
	return b.Build()
}

// TestConnection_SendsIdentityThenEmptyHistory covers a brand-new
// connection to an empty document: the client should receive its
// identity, then a History message whose revision list is empty.
func TestConnection_SendsIdentityThenEmptyHistory(t *testing.T) {
	server := testServer(t, "doc-1")
	ts := httptest.NewServer(server)
	defer ts.Close()

	conn := connectWebSocket(t, ts, "doc-1")

	identity := readServerMsg(t, conn)
	require.NotNil(t, identity.Identity)
	require.NotEmpty(t, identity.Identity.AuthorID)

	history := readServerMsg(t, conn)
	require.NotNil(t, history.History)
	require.Equal(t, 0, history.History.Start)
	require.Empty(t, history.History.Revisions)
	require.True(t, history.History.EndOfRevisions)
}

// TestConnection_SubmitIsAcked exercises the single-client submit path:
// a change set submitted at the current revision is committed and
// acknowledged with a plain ACK.
func TestConnection_SubmitIsAcked(t *testing.T) {
	server := testServer(t, "doc-1")
	ts := httptest.NewServer(server)
	defer ts.Close()

	conn := connectWebSocket(t, ts, "doc-1")
	readServerMsg(t, conn) // Identity
	readServerMsg(t, conn) // initial History

	sendClientMsg(t, conn, &protocol.ClientMsg{
		Submit: &protocol.SubmitMsg{OnRevisionNumber: 0, ChangeSet: insertAt(0, "hello", 0)},
	})

	ack := readServerMsg(t, conn)
	require.NotNil(t, ack.SubmitAck)
	require.Equal(t, protocol.ResponseAck, ack.SubmitAck.ResponseCode)
	require.Equal(t, 1, ack.SubmitAck.LastRevisionNumber)
}

// TestConnection_ConcurrentInsertConvergesForBothClients is scenario 1
// from the end-to-end scenario list: two clients both rooted at the same
// revision insert at the same position; the second submission is
// transformed against the first and both peers observe the same result.
func TestConnection_ConcurrentInsertConvergesForBothClients(t *testing.T) {
	server := testServer(t, "doc-1")
	ts := httptest.NewServer(server)
	defer ts.Close()

	connA := connectWebSocket(t, ts, "doc-1")
	readServerMsg(t, connA)
	readServerMsg(t, connA)

	connB := connectWebSocket(t, ts, "doc-1")
	readServerMsg(t, connB)
	readServerMsg(t, connB)

	// Seed the document with "abc" via A first.
	sendClientMsg(t, connA, &protocol.ClientMsg{
		Submit: &protocol.SubmitMsg{OnRevisionNumber: 0, ChangeSet: insertAt(0, "abc", 0)},
	})
	ackA := readServerMsg(t, connA)
	require.Equal(t, protocol.ResponseAck, ackA.SubmitAck.ResponseCode)
	require.Equal(t, 1, ackA.SubmitAck.LastRevisionNumber)

	revForB := readServerMsg(t, connB) // B sees the seed as a pushed History update
	require.NotNil(t, revForB.History)
	require.Len(t, revForB.History.Revisions, 1)

	// Both now at rev 1, text "abc". A inserts "X" after position 1, B
	// inserts "Y" after position 1, both still rooted at rev 1.
	sendClientMsg(t, connA, &protocol.ClientMsg{
		Submit: &protocol.SubmitMsg{OnRevisionNumber: 1, ChangeSet: insertAt(1, "X", 3)},
	})
	ackA2 := readServerMsg(t, connA)
	require.Equal(t, protocol.ResponseAck, ackA2.SubmitAck.ResponseCode)
	require.Equal(t, 2, ackA2.SubmitAck.LastRevisionNumber)

	pushToB := readServerMsg(t, connB)
	require.NotNil(t, pushToB.History)
	require.Len(t, pushToB.History.Revisions, 1)

	sendClientMsg(t, connB, &protocol.ClientMsg{
		Submit: &protocol.SubmitMsg{OnRevisionNumber: 1, ChangeSet: insertAt(1, "Y", 3)},
	})
	ackB := readServerMsg(t, connB)
	require.NotNil(t, ackB.SubmitAck)
	require.Equal(t, protocol.ResponseDiscoveredNewRevisions, ackB.SubmitAck.ResponseCode)
	require.Equal(t, 3, ackB.SubmitAck.LastRevisionNumber)

	pushToA := readServerMsg(t, connA)
	require.NotNil(t, pushToA.History)
	require.Len(t, pushToA.History.Revisions, 1)

	// Replay everything both clients have seen against the empty string
	// and confirm they converge.
	allForA := []*changeset.ChangeSet{
		insertAt(0, "abc", 0),
		insertAt(1, "X", 3),
		pushToA.History.Revisions[0].ChangeSet,
	}
	allForB := []*changeset.ChangeSet{
		insertAt(0, "abc", 0),
		pushToB.History.Revisions[0].ChangeSet,
		ackB.SubmitAck.Revisions[len(ackB.SubmitAck.Revisions)-1].ChangeSet,
	}

	finalA := replayAll(t, allForA)
	finalB := replayAll(t, allForB)
	require.Equal(t, finalA, finalB)
	require.Equal(t, "aXYbc", finalA)
}

// TestConnection_RetriedSubmitIsIdempotent is scenario 5: a retried
// submit with the same (session, on_revision) does not commit twice.
func TestConnection_RetriedSubmitIsIdempotent(t *testing.T) {
	server := testServer(t, "doc-1")
	ts := httptest.NewServer(server)
	defer ts.Close()

	conn := connectWebSocket(t, ts, "doc-1")
	readServerMsg(t, conn)
	readServerMsg(t, conn)

	submit := &protocol.ClientMsg{
		Submit: &protocol.SubmitMsg{OnRevisionNumber: 0, ChangeSet: insertAt(0, "abc", 0)},
	}
	sendClientMsg(t, conn, submit)
	first := readServerMsg(t, conn)
	require.Equal(t, 1, first.SubmitAck.LastRevisionNumber)

	sendClientMsg(t, conn, submit)
	second := readServerMsg(t, conn)
	require.Equal(t, 1, second.SubmitAck.LastRevisionNumber)
}

func replayAll(t *testing.T, sets []*changeset.ChangeSet) string {
	t.Helper()
	var text []uint16
	for _, cs := range sets {
		var err error
		text, err = changeset.Apply(cs, text)
		require.NoError(t, err)
	}
	return string(changeset.DecodeUTF16(text))
}
