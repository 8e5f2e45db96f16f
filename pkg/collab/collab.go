// Package collab implements the server OT engine (C4): a single-writer
// linearizer per document that admits concurrent SubmitDocumentChangeSet
// calls one at a time, rebasing a stale submission against history
// before committing it, and fans the result out to every other
// subscriber.
//
// Earlier designs of this admission loop held the operation log
// in-memory directly under the same mutex; here the mutex only
// serializes admission, and the durable append-if-matches commit goes
// through pkg/revlog so a restart or a second process never diverges
// from what was actually persisted.
package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/quillsync/quill/internal/protocol"
	"github.com/quillsync/quill/pkg/broadcast"
	"github.com/quillsync/quill/pkg/changeset"
	"github.com/quillsync/quill/pkg/document"
	"github.com/quillsync/quill/pkg/quilllog"
	"github.com/quillsync/quill/pkg/revlog"
)

// ErrInvalidRevision is returned when a submission claims to be rooted at
// a revision ahead of the server's current one: impossible except under
// client or transport corruption.
var ErrInvalidRevision = errors.New("collab: submitted revision is ahead of the document's current revision")

// ErrMalformedChangeSet is returned when a change set fails to apply even
// after being rebased against history.
var ErrMalformedChangeSet = errors.New("collab: change set does not apply, even after rebasing")

// submissionKey deduplicates a retried Submit from the same session: the
// server must return the already-committed result for an identical
// (sessionID, onRevision, changeSet) rather than double-applying it.
type submissionKey struct {
	sessionID  string
	onRevision int
	changeSet  string // MarshalBinary encoding of the submitted change set
}

// SubmitResult is what Submit returns: either a plain ACK (when the
// submission was rooted at the current revision) or a
// DiscoveredNewRevisions response (when it had to be rebased), carrying
// the revisions the caller should fold into its own buffers.
type SubmitResult struct {
	ResponseCode       string
	LastRevisionNumber int
	Revisions          []revlog.Revision
}

// Document is the per-document actor: admits one Submit at a time,
// serializes it against the revision log, and publishes committed
// revisions to every other subscriber over the broadcast channel.
type Document struct {
	id  string
	log revlog.Log
	pub broadcast.Publisher

	admissionMu sync.Mutex // serializes steps 2-6 of the linearizer
	state       *document.State

	dedupMu sync.Mutex
	dedup   map[submissionKey]SubmitResult
}

// NewDocument wires a per-document actor around an already-loaded
// document.State (e.g. from a snapshot plus trailing revisions) and the
// shared revision log / broadcast publisher.
func NewDocument(id string, state *document.State, log revlog.Log, pub broadcast.Publisher) *Document {
	return &Document{
		id:    id,
		log:   log,
		pub:   pub,
		state: state,
		dedup: make(map[submissionKey]SubmitResult),
	}
}

// Submit runs the §4.4 admission algorithm for one SubmitDocumentChangeSet
// call from sessionID, rooted at onRevision.
func (d *Document) Submit(ctx context.Context, sessionID string, onRevision int, cs *changeset.ChangeSet) (SubmitResult, error) {
	blob, err := cs.MarshalBinary()
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrMalformedChangeSet, err)
	}
	key := submissionKey{sessionID: sessionID, onRevision: onRevision, changeSet: string(blob)}
	if cached, ok := d.cachedResult(key); ok {
		return cached, nil
	}

	d.admissionMu.Lock()
	defer d.admissionMu.Unlock()

	// A second check under the lock: another goroutine for the same
	// session may have raced us to the dedup cache between the
	// lock-free read above and acquiring admissionMu.
	if cached, ok := d.cachedResult(key); ok {
		return cached, nil
	}

	for {
		currentRev, text := d.state.Get()

		switch {
		case onRevision == currentRev:
			result, committed, err := d.commit(ctx, sessionID, currentRev, cs)
			if errors.Is(err, revlog.ErrConflict) {
				continue // CAS lost: restart from reading current_rev
			}
			if err != nil {
				return SubmitResult{}, err
			}
			d.publishAndCache(key, result, committed)
			return result, nil

		case onRevision < currentRev:
			revs, lastRev, _, err := d.log.Range(ctx, d.id, onRevision)
			if err != nil {
				return SubmitResult{}, fmt.Errorf("collab: fetch history for rebase: %w", err)
			}
			rebased := cs
			for _, histRev := range revs {
				_, rPrime, err := changeset.Transform(histRev.ChangeSet, rebased)
				if err != nil {
					return SubmitResult{}, fmt.Errorf("%w: %v", ErrMalformedChangeSet, err)
				}
				rebased = rPrime
			}

			result, committed, err := d.commit(ctx, sessionID, lastRev, rebased)
			if errors.Is(err, revlog.ErrConflict) {
				continue
			}
			if err != nil {
				return SubmitResult{}, err
			}
			result.ResponseCode = protocol.ResponseDiscoveredNewRevisions
			result.Revisions = append(revs, committed)
			d.publishAndCache(key, result, committed)
			return result, nil

		default: // onRevision > currentRev
			return SubmitResult{}, ErrInvalidRevision
		}
	}
}

// commit checks that cs applies to the current text, then appends it as
// the next revision after
// expectedRevision, advancing the in-memory document state on success.
func (d *Document) commit(ctx context.Context, sessionID string, expectedRevision int, cs *changeset.ChangeSet) (SubmitResult, revlog.Revision, error) {
	_, text := d.state.Get()
	if _, err := changeset.Apply(cs, text); err != nil {
		return SubmitResult{}, revlog.Revision{}, fmt.Errorf("%w: %v", ErrMalformedChangeSet, err)
	}

	committed, err := d.log.AppendIf(ctx, d.id, expectedRevision, sessionID, cs)
	if err != nil {
		return SubmitResult{}, revlog.Revision{}, err
	}

	if _, err := d.state.Advance(cs); err != nil {
		return SubmitResult{}, revlog.Revision{}, fmt.Errorf("%w: %v", ErrMalformedChangeSet, err)
	}

	quilllog.Debug("collab: doc=%s committed revision=%d author=%s", d.id, committed.Number, sessionID)

	return SubmitResult{
		ResponseCode:       protocol.ResponseAck,
		LastRevisionNumber: committed.Number,
	}, committed, nil
}

func (d *Document) publishAndCache(key submissionKey, result SubmitResult, committed revlog.Revision) {
	d.dedupMu.Lock()
	d.dedup[key] = result
	d.dedupMu.Unlock()

	d.pub.Publish(d.id, committed)
}

func (d *Document) cachedResult(key submissionKey) (SubmitResult, bool) {
	d.dedupMu.Lock()
	defer d.dedupMu.Unlock()
	r, ok := d.dedup[key]
	return r, ok
}

// Revisions implements GetDocumentRevisions: every revision after
// afterRevision, in order.
func (d *Document) Revisions(ctx context.Context, afterRevision int) ([]revlog.Revision, int, bool, error) {
	return d.log.Range(ctx, d.id, afterRevision)
}

// Snapshot returns the current revision and text, for GetDocument and for
// seeding a newly connecting client.
func (d *Document) Snapshot() (revision int, text []uint16) {
	return d.state.Get()
}
