// Package client implements the client-side OT engine (C3): the
// three-buffer state machine a browser tab runs locally so that typing
// feels instantaneous while a single change set is ever in flight to the
// server at a time.
//
// The buffer invariant held at every instant is:
//
//	localText = apply(pending, apply(inFlight, serverText))
//
// States are the classic Synchronized / AwaitingConfirm /
// AwaitingWithBuffer trio from the collaborative-text-editing
// literature, named here as in_flight/pending buffers. Undo/redo and
// selection tracking live on the same type rather than split out
// separately, since both need to observe every local and remote change
// set as it lands.
package client

import (
	"errors"
	"sync"

	"github.com/quillsync/quill/pkg/changeset"
	"github.com/quillsync/quill/pkg/revlog"
)

// ErrNothingToUndo is returned by Undo when the undo stack is empty.
var ErrNothingToUndo = errors.New("client: nothing to undo")

// ErrNothingToRedo is returned by Redo when the redo stack is empty.
var ErrNothingToRedo = errors.New("client: nothing to redo")

// maxHistoryItems bounds the undo/redo stacks.
const maxHistoryItems = 50

// Submission is what the submission loop hands to the transport: the
// change set to send and the revision it is rooted at.
type Submission struct {
	OnRevision int
	ChangeSet  *changeset.ChangeSet
}

// Client holds one browser tab's local OT state.
type Client struct {
	mu sync.Mutex

	serverText []uint16
	committed  int // committed_revision: server_text is rooted here

	inFlight *changeset.ChangeSet // nil when empty
	pending  *changeset.ChangeSet // nil when empty

	undoStack []*changeset.ChangeSet
	redoStack []*changeset.ChangeSet

	selStart, selEnd int
}

// New returns a Client synchronized at the given revision with the given
// initial text.
func New(initialText []uint16, revision int) *Client {
	text := make([]uint16, len(initialText))
	copy(text, initialText)
	return &Client{serverText: text, committed: revision}
}

// LocalText returns apply(pending, apply(in_flight, server_text)), the
// text the local editor should currently be displaying.
func (c *Client) LocalText() ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localTextLocked()
}

func (c *Client) localTextLocked() ([]uint16, error) {
	text := c.serverText
	if c.inFlight != nil {
		var err error
		text, err = changeset.Apply(c.inFlight, text)
		if err != nil {
			return nil, err
		}
	}
	if c.pending != nil {
		var err error
		text, err = changeset.Apply(c.pending, text)
		if err != nil {
			return nil, err
		}
	}
	return text, nil
}

// CommittedRevision returns the revision server_text is currently rooted
// at.
func (c *Client) CommittedRevision() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed
}

// ApplyLocalEdit folds a locally authored change set e (rooted at the
// current local text) into pending, records its inverse on the undo
// stack, and clears the redo stack. e itself is never sent anywhere
// directly; the submission loop sends whatever pending has accumulated
// into the next SubmitDocumentChangeSet call.
func (c *Client) ApplyLocalEdit(e *changeset.ChangeSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	before, err := c.localTextLocked()
	if err != nil {
		return err
	}

	inv, err := changeset.Invert(e, before)
	if err != nil {
		return err
	}

	if c.pending == nil {
		c.pending = e
	} else {
		composed, err := changeset.Compose(c.pending, e)
		if err != nil {
			return err
		}
		c.pending = composed
	}

	c.pushUndo(inv)
	c.redoStack = c.redoStack[:0]
	c.adjustSelectionLocked(e)
	return nil
}

func (c *Client) pushUndo(inv *changeset.ChangeSet) {
	c.undoStack = append(c.undoStack, inv)
	if len(c.undoStack) > maxHistoryItems {
		c.undoStack = c.undoStack[1:]
	}
}

// NextSubmission implements the single-flight submission loop: if
// in_flight is non-empty, there is nothing to do (a submission is
// already outstanding); if pending is empty, there is nothing to send;
// otherwise pending moves into in_flight and is returned for the caller
// to transmit.
func (c *Client) NextSubmission() (Submission, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight != nil || c.pending == nil {
		return Submission{}, false
	}

	c.inFlight = c.pending
	c.pending = nil
	return Submission{OnRevision: c.committed, ChangeSet: c.inFlight}, true
}

// Ack handles the server's acknowledgement of the outstanding in_flight
// submission: in_flight applies to server_text (the server never
// re-broadcasts a commit to its own author, so this is the only place
// that commit ever lands in server_text), newRevision becomes
// committed_revision, in_flight clears, and any broadcastRevisions
// numbered beyond newRevision (normally none, in the ACK
// case, but tolerated) are folded into server_text exactly as
// DiscoveredNewRevisions would. The caller should invoke NextSubmission
// again afterward to flush pending.
func (c *Client) Ack(newRevision int, broadcastRevisions []revlog.Revision) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight != nil {
		newServerText, err := changeset.Apply(c.inFlight, c.serverText)
		if err != nil {
			return err
		}
		c.serverText = newServerText
	}
	c.inFlight = nil
	c.committed = newRevision

	for _, r := range broadcastRevisions {
		if r.Number <= c.committed {
			continue
		}
		if err := c.foldForeignRevisionLocked(r); err != nil {
			return err
		}
	}
	return nil
}

// DiscoveredNewRevisions handles a batch of revisions the server reports
// that this client has not yet seen, whether returned directly from a
// SubmitDocumentChangeSet response or delivered over the pub-sub
// broadcast channel. Each revision is transformed past in_flight and
// pending in turn (so those buffers keep addressing the same logical
// edit after the document shifts under them), applied to server_text,
// and transformed past every undo/redo stack entry so future inversions
// still target the right positions.
func (c *Client) DiscoveredNewRevisions(lastRevision int, revisions []revlog.Revision) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range revisions {
		if err := c.foldForeignRevisionLocked(r); err != nil {
			return err
		}
	}
	c.committed = lastRevision
	return nil
}

func (c *Client) foldForeignRevisionLocked(r revlog.Revision) error {
	// r.ChangeSet is already rooted at server_text's current revision, so
	// it applies to server_text directly with no transform: the server
	// only ever hands out revisions already transformed against
	// everything up to the revision they follow.
	newServerText, err := changeset.Apply(r.ChangeSet, c.serverText)
	if err != nil {
		return err
	}
	c.serverText = newServerText

	// remote starts in server_text's coordinate space and gets pushed,
	// one buffer at a time, first past in_flight (into the space pending
	// is rooted at) and then past pending, into the local-text space that
	// undoStack/redoStack/the selection all share.
	remote := r.ChangeSet
	if c.inFlight != nil {
		rPrime, inFlightPrime, err := changeset.Transform(remote, c.inFlight)
		if err != nil {
			return err
		}
		remote = rPrime
		c.inFlight = inFlightPrime
	}

	if c.pending != nil {
		rPrime, pendingPrime, err := changeset.Transform(remote, c.pending)
		if err != nil {
			return err
		}
		remote = rPrime
		c.pending = pendingPrime
	}

	var err2 error
	c.undoStack, err2 = transformStack(c.undoStack, remote)
	if err2 != nil {
		return err2
	}
	c.redoStack, err2 = transformStack(c.redoStack, remote)
	if err2 != nil {
		return err2
	}

	c.adjustSelectionLocked(remote)
	return nil
}

// transformStack transforms every entry of a change-set stack against a
// single incoming change set, newest entry first, threading the
// incoming change set's own transformed counterpart through each step.
// Applied identically to both the undo and redo stacks.
func transformStack(stack []*changeset.ChangeSet, remote *changeset.ChangeSet) ([]*changeset.ChangeSet, error) {
	out := make([]*changeset.ChangeSet, 0, len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		entryPrime, remotePrime, err := changeset.Transform(stack[i], remote)
		if err != nil {
			return nil, err
		}
		if !entryPrime.IsNoop() {
			out = append(out, entryPrime)
		}
		remote = remotePrime
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Undo pops the most recent inverse off the undo stack and applies it as
// a normal local edit (ApplyLocalEdit), pushing its own inverse onto the
// redo stack. This is "transposed" undo semantics: since every undo
// stack entry is kept transformed against every foreign revision as it
// arrives (see foldForeignRevisionLocked), the popped inverse always
// targets the current local text, not the text as it stood when the
// edit was originally made.
func (c *Client) Undo() (*changeset.ChangeSet, error) {
	c.mu.Lock()
	if len(c.undoStack) == 0 {
		c.mu.Unlock()
		return nil, ErrNothingToUndo
	}
	u := c.undoStack[len(c.undoStack)-1]
	c.undoStack = c.undoStack[:len(c.undoStack)-1]
	c.mu.Unlock()

	if err := c.applyHistoryEntry(u, &c.redoStack); err != nil {
		return nil, err
	}
	return u, nil
}

// Redo is symmetric to Undo: it pops the redo stack and pushes back onto
// the undo stack.
func (c *Client) Redo() (*changeset.ChangeSet, error) {
	c.mu.Lock()
	if len(c.redoStack) == 0 {
		c.mu.Unlock()
		return nil, ErrNothingToRedo
	}
	r := c.redoStack[len(c.redoStack)-1]
	c.redoStack = c.redoStack[:len(c.redoStack)-1]
	c.mu.Unlock()

	if err := c.applyHistoryEntry(r, &c.undoStack); err != nil {
		return nil, err
	}
	return r, nil
}

// applyHistoryEntry folds a popped undo/redo entry into pending exactly
// like a local edit, but pushes its inverse onto the opposite stack
// instead of clearing it (an undo must populate redo, not erase it).
func (c *Client) applyHistoryEntry(entry *changeset.ChangeSet, opposite *[]*changeset.ChangeSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	before, err := c.localTextLocked()
	if err != nil {
		return err
	}
	inv, err := changeset.Invert(entry, before)
	if err != nil {
		return err
	}

	if c.pending == nil {
		c.pending = entry
	} else {
		composed, err := changeset.Compose(c.pending, entry)
		if err != nil {
			return err
		}
		c.pending = composed
	}

	*opposite = append(*opposite, inv)
	c.adjustSelectionLocked(entry)
	return nil
}

// Selection returns the current local selection range.
func (c *Client) Selection() (start, end int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selStart, c.selEnd
}

// SetSelection overwrites the local selection range, e.g. in response to
// a browser selection-change event that was not caused by an edit.
func (c *Client) SetSelection(start, end int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selStart, c.selEnd = start, end
}

// adjustSelectionLocked re-maps the selection through a change set that
// was just applied to the local text, per the left-to-right cursor scan:
// Insert shifts indices at or past the cursor forward by its length,
// Delete clamps indices inside the deleted span to the cursor and shifts
// anything past it back by the deleted length, Retain advances the
// cursor.
func (c *Client) adjustSelectionLocked(cs *changeset.ChangeSet) {
	c.selStart = transformIndex(cs, c.selStart)
	c.selEnd = transformIndex(cs, c.selEnd)
}

func transformIndex(cs *changeset.ChangeSet, index int) int {
	cursor := 0
	for _, op := range cs.Ops() {
		switch v := op.(type) {
		case changeset.Retain:
			cursor += int(v)
		case changeset.Insert:
			if cursor <= index {
				index += len(v)
			}
			cursor += len(v)
		case changeset.Delete:
			n := int(v)
			if index >= cursor && index < cursor+n {
				index = cursor
			} else if index >= cursor+n {
				index -= n
			}
		}
	}
	return index
}
