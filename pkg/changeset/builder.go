package changeset

// Builder constructs a canonicalized ChangeSet. It is the only way to
// produce a ChangeSet outside of the algebra functions (Compose,
// Transform, Invert), which build their results through the same path.
//
// Builder enforces the three invariants documented on ChangeSet as each
// op is appended, mirroring the merge-on-insert behavior of the ot.js
// TextOperation builder: same-kind ops adjacent in the call sequence are
// coalesced immediately, and an Insert appended right after a Delete is
// swapped ahead of it so Insert always precedes Delete in the stored form.
type Builder struct {
	ops       []Op
	inputLen  int
	outputLen int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{ops: make([]Op, 0, 8)}
}

// Retain appends a retain of n code units. n <= 0 is a no-op.
func (b *Builder) Retain(n int) *Builder {
	if n <= 0 {
		return b
	}
	b.inputLen += n
	b.outputLen += n

	if last := b.lastIndex(); last >= 0 {
		if r, ok := b.ops[last].(Retain); ok {
			b.ops[last] = r + Retain(n)
			return b
		}
	}
	b.ops = append(b.ops, Retain(n))
	return b
}

// Delete appends a delete of n code units. n <= 0 is a no-op.
func (b *Builder) Delete(n int) *Builder {
	if n <= 0 {
		return b
	}
	b.inputLen += n

	if last := b.lastIndex(); last >= 0 {
		if d, ok := b.ops[last].(Delete); ok {
			b.ops[last] = d + Delete(n)
			return b
		}
	}
	b.ops = append(b.ops, Delete(n))
	return b
}

// Insert appends an insert of the given UTF-16 code units. An empty
// insert is a no-op.
func (b *Builder) Insert(units Insert) *Builder {
	if len(units) == 0 {
		return b
	}
	b.outputLen += len(units)

	n := len(b.ops)
	if n > 0 {
		if ins, ok := b.ops[n-1].(Insert); ok {
			b.ops[n-1] = append(append(Insert(nil), ins...), units...)
			return b
		}
		// Canonical order: Insert precedes Delete. If the previous op is
		// a Delete, insert ahead of it (merging with a further preceding
		// Insert if one exists).
		if del, ok := b.ops[n-1].(Delete); ok {
			if n >= 2 {
				if ins, ok := b.ops[n-2].(Insert); ok {
					b.ops[n-2] = append(append(Insert(nil), ins...), units...)
					return b
				}
			}
			b.ops[n-1] = units
			b.ops = append(b.ops, del)
			return b
		}
	}
	b.ops = append(b.ops, append(Insert(nil), units...))
	return b
}

// InsertStr is a convenience wrapper around Insert for Go string literals.
func (b *Builder) InsertStr(s string) *Builder {
	return b.Insert(InsertString(s))
}

func (b *Builder) lastIndex() int {
	if len(b.ops) == 0 {
		return -1
	}
	return len(b.ops) - 1
}

// Build finalizes the ChangeSet. The Builder can be reused afterwards; the
// returned ChangeSet owns a private copy of the op slice.
func (b *Builder) Build() *ChangeSet {
	ops := make([]Op, len(b.ops))
	copy(ops, b.ops)
	return &ChangeSet{ops: ops, inputLen: b.inputLen, outputLen: b.outputLen}
}
