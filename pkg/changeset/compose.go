package changeset

// Compose combines two sequentially applied change sets a then b into a
// single equivalent change set c such that, for every text t applicable to
// a:
//
//	Apply(c, t) == Apply(b, Apply(a, t))
//
// Compose requires a.OutputLen() == b.InputLen(); otherwise it fails with
// ErrCompositionMismatch.
//
// The algorithm walks both operation lists with a pair of cursors,
// consuming whichever side produces output first: a's Delete (it never
// appears in b's view of the document), then b's Insert (it never
// consumed anything from a's output), then the Retain/Retain,
// Retain/Delete, Insert/Retain and Insert/Delete cases below. This is the
// standard ot.js/operational-transform compose algorithm.
func Compose(a, b *ChangeSet) (*ChangeSet, error) {
	if a.outputLen != b.inputLen {
		return nil, ErrCompositionMismatch
	}

	out := NewBuilder()
	c := newCursorPair(a.ops, b.ops)

	for !c.done() {
		switch {
		case c.aIsDelete():
			n := c.aLen()
			out.Delete(n)
			c.advanceA(n)

		case c.bIsInsert():
			ins := c.bInsert()
			out.Insert(ins)
			c.advanceB(len(ins))

		case c.aMissing():
			return nil, ErrMalformedChangeSet
		case c.bMissing():
			return nil, ErrMalformedChangeSet

		case c.aIsRetain() && c.bIsRetain():
			n := min(c.aLen(), c.bLen())
			out.Retain(n)
			c.advanceA(n)
			c.advanceB(n)

		case c.aIsRetain() && c.bIsDelete():
			n := min(c.aLen(), c.bLen())
			out.Delete(n)
			c.advanceA(n)
			c.advanceB(n)

		case c.aIsInsert() && c.bIsRetain():
			ins := c.aInsert()
			n := min(len(ins), c.bLen())
			out.Insert(ins[:n])
			c.advanceA(n)
			c.advanceB(n)

		case c.aIsInsert() && c.bIsDelete():
			ins := c.aInsert()
			n := min(len(ins), c.bLen())
			// Insert immediately undone by Delete: cancels, emits nothing.
			c.advanceA(n)
			c.advanceB(n)

		default:
			return nil, ErrMalformedChangeSet
		}
	}

	return out.Build(), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
