// Package memory implements an in-process pkg/revlog.Log, suitable for
// tests and for a single-process deployment without Redis/SQLite wired
// in. It keeps one mutex-guarded revision slice per document in a
// sync.Map, so appends to different documents do not contend.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/quillsync/quill/pkg/changeset"
	"github.com/quillsync/quill/pkg/revlog"
)

type docLog struct {
	mu        sync.Mutex
	revisions []revlog.Revision
}

// Log is an in-memory revlog.Log. The zero value is ready to use.
type Log struct {
	docs sync.Map // map[string]*docLog
}

// New returns an empty in-memory Log.
func New() *Log {
	return &Log{}
}

func (l *Log) doc(docID string) *docLog {
	v, _ := l.docs.LoadOrStore(docID, &docLog{})
	return v.(*docLog)
}

// AppendIf implements revlog.Log.
func (l *Log) AppendIf(ctx context.Context, docID string, expectedRevision int, authorID string, cs *changeset.ChangeSet) (revlog.Revision, error) {
	d := l.doc(docID)
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.revisions) != expectedRevision {
		return revlog.Revision{}, revlog.ErrConflict
	}

	rev := revlog.Revision{
		Number:      expectedRevision + 1,
		AuthorID:    authorID,
		ChangeSet:   cs,
		CommittedAt: time.Now(),
	}
	d.revisions = append(d.revisions, rev)
	return rev, nil
}

// Range implements revlog.Log.
func (l *Log) Range(ctx context.Context, docID string, afterRevision int) ([]revlog.Revision, int, bool, error) {
	d := l.doc(docID)
	d.mu.Lock()
	defer d.mu.Unlock()

	last := len(d.revisions)
	if afterRevision >= last {
		return nil, last, true, nil
	}

	out := make([]revlog.Revision, last-afterRevision)
	copy(out, d.revisions[afterRevision:])
	return out, last, true, nil
}

// Head implements revlog.Log.
func (l *Log) Head(ctx context.Context, docID string) (int, error) {
	d := l.doc(docID)
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.revisions), nil
}
