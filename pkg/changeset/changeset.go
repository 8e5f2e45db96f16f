package changeset

import "strings"

// ChangeSet is an immutable, canonicalized sequence of operations
// describing a transformation from one text state to another.
//
// Canonical form (enforced by Builder, the only constructor):
//  1. no empty operation (Retain(0), Delete(0), empty Insert)
//  2. adjacent operations of the same kind are coalesced
//  3. when an Insert is adjacent to a Delete, the Insert comes first
//
// A ChangeSet is safe for concurrent read-only use; nothing in this
// package mutates one after Build.
type ChangeSet struct {
	ops       []Op
	inputLen  int
	outputLen int
}

// Ops returns the underlying operation list. Callers must not mutate the
// returned slice.
func (cs *ChangeSet) Ops() []Op { return cs.ops }

// InputLen is the length, in UTF-16 code units, this change set must be
// applied to.
func (cs *ChangeSet) InputLen() int { return cs.inputLen }

// OutputLen is the length, in UTF-16 code units, of the result of applying
// this change set.
func (cs *ChangeSet) OutputLen() int { return cs.outputLen }

// IsNoop reports whether applying cs leaves the text unchanged: it is
// either empty or a single Retain spanning the whole input.
func (cs *ChangeSet) IsNoop() bool {
	if len(cs.ops) == 0 {
		return true
	}
	return len(cs.ops) == 1 && cs.ops[0].Kind() == KindRetain
}

func (cs *ChangeSet) String() string {
	parts := make([]string, len(cs.ops))
	for i, op := range cs.ops {
		parts[i] = op.String()
	}
	return strings.Join(parts, ", ")
}

// Equal reports whether two change sets contain the same canonical
// operation sequence.
func (cs *ChangeSet) Equal(other *ChangeSet) bool {
	if cs.inputLen != other.inputLen || cs.outputLen != other.outputLen {
		return false
	}
	if len(cs.ops) != len(other.ops) {
		return false
	}
	for i := range cs.ops {
		if !opsEqual(cs.ops[i], other.ops[i]) {
			return false
		}
	}
	return true
}

func opsEqual(a, b Op) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Retain:
		return av == b.(Retain)
	case Delete:
		return av == b.(Delete)
	case Insert:
		bv := b.(Insert)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	}
	return false
}

// Empty returns the zero-length, zero-effect change set.
func Empty() *ChangeSet {
	return &ChangeSet{}
}
