// Package sqlite is the production revlog.Log and document metadata
// store, backed by SQLite. It splits what used to be a single
// `document` table keyed by id into a three-table layout: document
// metadata, an append-only revision log, and full-text snapshots so
// loading a document (pkg/server.Hub.open) only replays the revisions
// after the latest snapshot. A snapshot is written only when
// SaveSnapshot is called; the store takes none on its own.
//
// The CAS AppendIf depends on requires is the document_revisions table's
// PRIMARY KEY (doc_id, revision_number): a second writer racing to
// commit the same revision number gets a UNIQUE constraint violation,
// which AppendIf turns into revlog.ErrConflict.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quillsync/quill/pkg/changeset"
	"github.com/quillsync/quill/pkg/revlog"
)

// Document is a row of document metadata, independent of its revision
// history.
type Document struct {
	ID        string
	OrgID     string
	Title     string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store wraps a SQLite connection and implements revlog.Log plus the
// document metadata operations (CreateDocument, UpdateDocumentTitle,
// ListMyDocuments) the RPC surface needs outside the OT core.
type Store struct {
	db *sql.DB
}

// Open connects to the SQLite database at uri and applies any pending
// migrations.
func Open(uri string) (*Store, error) {
	db, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	// SQLite allows only one writer at a time; go-sqlite3's driver-level
	// locking handles that per connection, but an in-memory database is
	// private to the connection that created it, so a pool of more than
	// one connection would each see an empty schema. Pin to one.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateDocument inserts a new document row.
func (s *Store) CreateDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (doc_id, org_id, title, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OrgID, doc.Title, doc.OwnerID, doc.CreatedAt.Unix(), doc.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("storage: create document: %w", err)
	}
	return nil
}

// GetDocument fetches a document's metadata. It returns
// revlog.ErrDocumentNotFound if no such document exists.
func (s *Store) GetDocument(ctx context.Context, docID string) (Document, error) {
	var doc Document
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT doc_id, org_id, title, owner_id, created_at, updated_at FROM documents WHERE doc_id = ?`,
		docID,
	).Scan(&doc.ID, &doc.OrgID, &doc.Title, &doc.OwnerID, &createdAt, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, revlog.ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("storage: get document: %w", err)
	}

	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)
	return doc, nil
}

// UpdateDocumentTitle renames a document.
func (s *Store) UpdateDocumentTitle(ctx context.Context, docID, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET title = ?, updated_at = ? WHERE doc_id = ?`,
		title, time.Now().Unix(), docID,
	)
	if err != nil {
		return fmt.Errorf("storage: update title: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: update title rows affected: %w", err)
	}
	if rows == 0 {
		return revlog.ErrDocumentNotFound
	}
	return nil
}

// ListMyDocuments returns every document owned by ownerID, most recently
// updated first.
func (s *Store) ListMyDocuments(ctx context.Context, ownerID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, org_id, title, owner_id, created_at, updated_at
		 FROM documents WHERE owner_id = ? ORDER BY updated_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		var createdAt, updatedAt int64
		if err := rows.Scan(&doc.ID, &doc.OrgID, &doc.Title, &doc.OwnerID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan document: %w", err)
		}
		doc.CreatedAt = time.Unix(createdAt, 0)
		doc.UpdatedAt = time.Unix(updatedAt, 0)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// AppendIf implements revlog.Log. The INSERT's primary key
// (doc_id, revision_number) is the compare-and-set: a concurrent writer
// that already claimed expectedRevision+1 causes a UNIQUE constraint
// failure here, which is reported as revlog.ErrConflict.
func (s *Store) AppendIf(ctx context.Context, docID string, expectedRevision int, authorID string, cs *changeset.ChangeSet) (revlog.Revision, error) {
	blob, err := cs.MarshalBinary()
	if err != nil {
		return revlog.Revision{}, fmt.Errorf("storage: encode change set: %w", err)
	}

	next := expectedRevision + 1
	now := time.Now()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO document_revisions (doc_id, revision_number, author_id, change_set_blob, committed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		docID, next, authorID, blob, now.Unix(),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return revlog.Revision{}, revlog.ErrConflict
		}
		return revlog.Revision{}, fmt.Errorf("storage: append revision: %w", err)
	}

	return revlog.Revision{
		Number:      next,
		AuthorID:    authorID,
		ChangeSet:   cs,
		CommittedAt: now,
	}, nil
}

// Range implements revlog.Log.
func (s *Store) Range(ctx context.Context, docID string, afterRevision int) ([]revlog.Revision, int, bool, error) {
	var lastRevision int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(revision_number), 0) FROM document_revisions WHERE doc_id = ?`,
		docID,
	).Scan(&lastRevision)
	if err != nil {
		return nil, 0, false, fmt.Errorf("storage: range head: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT revision_number, author_id, change_set_blob, committed_at
		 FROM document_revisions WHERE doc_id = ? AND revision_number > ? ORDER BY revision_number ASC`,
		docID, afterRevision,
	)
	if err != nil {
		return nil, 0, false, fmt.Errorf("storage: range query: %w", err)
	}
	defer rows.Close()

	var revs []revlog.Revision
	for rows.Next() {
		var number int
		var authorID string
		var blob []byte
		var committedAt int64
		if err := rows.Scan(&number, &authorID, &blob, &committedAt); err != nil {
			return nil, 0, false, fmt.Errorf("storage: scan revision: %w", err)
		}

		var cs changeset.ChangeSet
		if err := cs.UnmarshalBinary(blob); err != nil {
			return nil, 0, false, fmt.Errorf("storage: decode revision %d: %w", number, err)
		}

		revs = append(revs, revlog.Revision{
			Number:      number,
			AuthorID:    authorID,
			ChangeSet:   &cs,
			CommittedAt: time.Unix(committedAt, 0),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, false, err
	}

	return revs, lastRevision, true, nil
}

// Head implements revlog.Log.
func (s *Store) Head(ctx context.Context, docID string) (int, error) {
	var rev int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(revision_number), 0) FROM document_revisions WHERE doc_id = ?`,
		docID,
	).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("storage: head: %w", err)
	}
	return rev, nil
}

// SaveSnapshot writes (or replaces) the full-text snapshot for a
// document at the given revision, so a future load does not need to
// replay the entire history from revision 0.
func (s *Store) SaveSnapshot(ctx context.Context, docID string, revision int, text []uint16) error {
	blob, err := encodeUTF16Blob(text)
	if err != nil {
		return fmt.Errorf("storage: encode snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO document_snapshots (doc_id, revision_number, text_blob, taken_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(doc_id) DO UPDATE SET
			revision_number = excluded.revision_number,
			text_blob = excluded.text_blob,
			taken_at = excluded.taken_at`,
		docID, revision, blob, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("storage: save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the most recent full-text snapshot for docID, or
// (nil, 0, false, nil) if none has been taken yet.
func (s *Store) LoadSnapshot(ctx context.Context, docID string) ([]uint16, int, bool, error) {
	var blob []byte
	var revision int
	err := s.db.QueryRowContext(ctx,
		`SELECT text_blob, revision_number FROM document_snapshots WHERE doc_id = ?`,
		docID,
	).Scan(&blob, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("storage: load snapshot: %w", err)
	}

	text, err := decodeUTF16Blob(blob)
	if err != nil {
		return nil, 0, false, fmt.Errorf("storage: decode snapshot: %w", err)
	}
	return text, revision, true, nil
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
