// Package revlog defines the server-side revision log: the append-only,
// per-document sequence of committed change sets that the server OT
// engine (pkg/collab) and the client OT engine (pkg/client) both
// reconcile against.
//
// A Log is the only component allowed to assign revision numbers. Every
// append is conditional on the caller's expected current revision (a
// compare-and-swap), so a writer that lost a race gets ErrConflict back
// and must re-transform and retry rather than silently clobbering a
// concurrent commit.
package revlog

import (
	"context"
	"errors"
	"time"

	"github.com/quillsync/quill/pkg/changeset"
)

// ErrConflict is returned by AppendIf when expectedRevision no longer
// matches the log's current revision: another writer committed first.
var ErrConflict = errors.New("revlog: conflict, expected revision is stale")

// ErrDocumentNotFound is returned when doc_id names no known document.
var ErrDocumentNotFound = errors.New("revlog: document not found")

// Revision is one committed entry in a document's history.
type Revision struct {
	Number      int                  `json:"number"`
	AuthorID    string               `json:"author_id"`
	ChangeSet   *changeset.ChangeSet `json:"change_set"`
	CommittedAt time.Time            `json:"committed_at"`
}

// Log is the storage-agnostic revision log contract. pkg/revlog/memory
// and pkg/storage/sqlite both implement it.
type Log interface {
	// AppendIf commits cs as the next revision of docID, provided the
	// log's current revision equals expectedRevision. On success it
	// returns the newly committed Revision. On a lost race it returns
	// ErrConflict and the caller is expected to re-transform cs against
	// whatever committed in the meantime and retry.
	AppendIf(ctx context.Context, docID string, expectedRevision int, authorID string, cs *changeset.ChangeSet) (Revision, error)

	// Range returns every revision after afterRevision, in order, along
	// with the log's current (last) revision number. endOfRevisions is
	// true when the returned slice reaches that last revision; a caller
	// that wants more later should re-query from lastRevisionNumber.
	Range(ctx context.Context, docID string, afterRevision int) (revisions []Revision, lastRevisionNumber int, endOfRevisions bool, err error)

	// Head returns the current revision number for docID without
	// fetching any change sets, or 0 for a document with no history yet.
	Head(ctx context.Context, docID string) (int, error)
}
