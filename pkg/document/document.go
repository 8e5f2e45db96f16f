// Package document implements the server-side document state component: a
// mutex-guarded (text, revision) pair with a single mutating operation,
// Advance, that is the only way the text or revision number ever change.
//
// Narrowed to just the two operations the OT core needs: Get and
// Advance. User presence, cursors, and access gating belong to the
// collaboration layer built on top of this package, not to the
// document state itself.
package document

import (
	"fmt"
	"sync"

	"github.com/quillsync/quill/pkg/changeset"
)

// State holds a document's current text (as UTF-16 code units) and the
// revision number of the last change set applied to it. The zero revision
// is the empty document.
type State struct {
	mu       sync.RWMutex
	text     []uint16
	revision int
}

// New returns a State seeded with the given initial text and revision,
// for example one just loaded from a snapshot plus its trailing
// revisions.
func New(text []uint16, revision int) *State {
	cp := make([]uint16, len(text))
	copy(cp, text)
	return &State{text: cp, revision: revision}
}

// Get returns the current revision number and a copy of the current text.
// The returned slice is safe for the caller to keep or mutate.
func (s *State) Get() (revision int, text []uint16) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := make([]uint16, len(s.text))
	copy(cp, s.text)
	return s.revision, cp
}

// Revision returns only the current revision number, without copying the
// text. Cheaper than Get when the caller only needs to compare revisions.
func (s *State) Revision() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Advance validates that cs applies cleanly to the current text, then
// atomically replaces the text with the result and increments the
// revision. It is the only method on State that mutates the document; on
// the server, the per-document actor in pkg/collab is the only caller,
// so calls are already serialized and Advance never races itself.
//
// Advance returns the new revision number, or an error if cs.InputLen()
// does not match the current text length (the caller did not rebase
// against the right revision before calling).
func (s *State) Advance(cs *changeset.ChangeSet) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cs.InputLen() != len(s.text) {
		return 0, fmt.Errorf("document: advance at revision %d: %w (have %d units, change set expects %d)",
			s.revision, changeset.ErrLengthMismatch, len(s.text), cs.InputLen())
	}

	newText, err := changeset.Apply(cs, s.text)
	if err != nil {
		return 0, err
	}

	s.text = newText
	s.revision++
	return s.revision, nil
}

// ApplyChangeSet applies cs to text and returns the result. It is the
// free function form of Advance's core step, for replaying a trailing
// run of revisions onto a loaded snapshot before a State exists yet.
func ApplyChangeSet(text []uint16, cs *changeset.ChangeSet) ([]uint16, error) {
	return changeset.Apply(cs, text)
}
