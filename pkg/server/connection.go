package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/quillsync/quill/internal/protocol"
	"github.com/quillsync/quill/pkg/broadcast"
	"github.com/quillsync/quill/pkg/collab"
	"github.com/quillsync/quill/pkg/quilllog"
	"github.com/quillsync/quill/pkg/revlog"
)

// sendTimeout bounds how long a single outbound write may take before the
// connection is considered unresponsive.
const sendTimeout = 10 * time.Second

// readTimeout bounds how long Handle waits for the next client message
// before treating the connection as idle and re-checking for pushed
// revisions.
const readTimeout = 30 * time.Second

// Connection runs the message loop for one client's WebSocket session
// against one document: it relays SubmitDocumentChangeSet calls to the
// document's collab.Document actor and forwards every revision the actor
// publishes that this client has not already been sent back down the
// socket; the client learns of its own commits from its SubmitAck.
//
// An earlier version of this loop read straight from a per-user channel
// fed by the document actor directly; here the feed is pkg/broadcast's
// per-document subscription, so the same Connection code works whether
// the publisher is the in-memory implementation or Redis.
type Connection struct {
	docID     string
	sessionID string
	actor     *collab.Document
	sub       broadcast.Subscriber
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	sendMu    sync.Mutex

	// caughtUpTo is the highest revision number this connection has been
	// told about, whether via its own SubmitAck or a forwarded update.
	// handleSubmit advances it before forwardUpdates ever sees the
	// matching broadcast, since pkg/broadcast fans a commit out to every
	// subscriber including the one that made it; without this a
	// submitter would receive its own just-committed revision twice.
	caughtUpTo atomic.Int64
}

// NewConnection creates a connection handler for sessionID against
// docID's actor.
func NewConnection(docID, sessionID string, actor *collab.Document, sub broadcast.Subscriber, conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		docID:     docID,
		sessionID: sessionID,
		actor:     actor,
		sub:       sub,
		conn:      conn,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Handle manages the connection lifecycle: send the identity and full
// history, subscribe to future revisions, then alternate between
// forwarding pushed revisions and reading client messages until the
// socket closes.
func (c *Connection) Handle(ctx context.Context) error {
	defer c.cancel()

	revisions, lastRev, _, err := c.actor.Revisions(ctx, 0)
	if err != nil {
		return fmt.Errorf("load initial history: %w", err)
	}
	if err := c.send(protocol.NewIdentityMsg(c.sessionID)); err != nil {
		return fmt.Errorf("send identity: %w", err)
	}
	if err := c.send(protocol.NewHistoryMsg(0, revisions, true)); err != nil {
		return fmt.Errorf("send initial history: %w", err)
	}
	c.caughtUpTo.Store(int64(lastRev))

	updates, unsubscribe := c.sub.Subscribe(c.docID)
	defer unsubscribe()

	updatesDone := make(chan struct{})
	go c.forwardUpdates(updates, updatesDone)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return c.ctx.Err()
		case <-updatesDone:
			return fmt.Errorf("update forwarder stopped")
		default:
		}

		readCtx, readCancel := context.WithTimeout(ctx, readTimeout)
		var msg protocol.ClientMsg
		err := wsjson.Read(readCtx, c.conn, &msg)
		readCancel()
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			if ctx.Err() != nil || c.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}

		if err := c.handleMessage(ctx, &msg); err != nil {
			quilllog.Error("server: handling message from session=%s doc=%s: %v", c.sessionID, c.docID, err)
			return err
		}
	}
}

// handleMessage dispatches one decoded client message.
func (c *Connection) handleMessage(ctx context.Context, msg *protocol.ClientMsg) error {
	if msg.Submit != nil {
		return c.handleSubmit(ctx, msg.Submit)
	}

	// ClientInfo and CursorData are presentational-only presence updates;
	// propagating them to peers is the ephemeral pub-sub service named as
	// an external collaborator, not part of the OT core this connection
	// loop serializes. Accept and drop them rather than rejecting the
	// message outright.
	return nil
}

// handleSubmit implements SubmitDocumentChangeSet for this session and
// acknowledges the result. It advances caughtUpTo to the newly committed
// revision before returning, so the forwarder goroutine drops the
// broadcast of this same commit instead of pushing it a second time.
func (c *Connection) handleSubmit(ctx context.Context, sub *protocol.SubmitMsg) error {
	result, err := c.actor.Submit(ctx, c.sessionID, sub.OnRevisionNumber, sub.ChangeSet)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if err := c.send(protocol.NewSubmitAckMsg(result.ResponseCode, result.LastRevisionNumber, result.Revisions, true)); err != nil {
		return err
	}
	bumpWatermark(&c.caughtUpTo, result.LastRevisionNumber)
	return nil
}

// forwardUpdates relays every revision published for this document to
// the client, skipping ones it has already caught up to (its own commit,
// already acknowledged by handleSubmit, or a revision folded into its
// initial history).
func (c *Connection) forwardUpdates(updates <-chan revlog.Revision, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case rev, ok := <-updates:
			if !ok {
				return
			}
			start := int(c.caughtUpTo.Load())
			if rev.Number <= start {
				continue
			}
			if err := c.send(protocol.NewHistoryMsg(start, []revlog.Revision{rev}, true)); err != nil {
				quilllog.Error("server: forwarding update to session=%s doc=%s: %v", c.sessionID, c.docID, err)
				c.cancel()
				return
			}
			bumpWatermark(&c.caughtUpTo, rev.Number)
		}
	}
}

// bumpWatermark advances an atomic revision watermark, tolerating the
// race between handleSubmit and forwardUpdates both trying to record the
// same or an out-of-order revision: only a strictly higher value wins.
func bumpWatermark(w *atomic.Int64, rev int) {
	for {
		cur := w.Load()
		if int64(rev) <= cur {
			return
		}
		if w.CompareAndSwap(cur, int64(rev)) {
			return
		}
	}
}

// send writes one server message to the socket. The websocket connection
// allows only one writer at a time, and the submit-ack path and the
// update-forwarder goroutine both call send, so this is mutex-guarded.
func (c *Connection) send(msg *protocol.ServerMsg) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	writeCtx, writeCancel := context.WithTimeout(c.ctx, sendTimeout)
	defer writeCancel()
	return wsjson.Write(writeCtx, c.conn, msg)
}
