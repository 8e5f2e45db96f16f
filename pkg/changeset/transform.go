package changeset

// Transform takes two change sets a and b with the same InputLen (both
// rooted at the same document revision) and produces a', b' such that:
//
//	Apply(b', Apply(a, t)) == Apply(a', Apply(b, t))
//
// for every text t applicable to both. This is the standard
// operational-transformation diamond property: applying a then the
// transformed b' lands on the same document as applying b then the
// transformed a'.
//
// Tie-break: when both sides insert at the same position, a's insert is
// placed first in the result (a' retains past it, b' is pushed past it).
// The server rebases a submission with Transform(historyChangeSet,
// clientChangeSet) and the client folds a remote revision with
// Transform(remote, local), so on both sides the already-committed
// history insert lands before a same-position concurrent local insert.
func Transform(a, b *ChangeSet) (*ChangeSet, *ChangeSet, error) {
	if a.inputLen != b.inputLen {
		return nil, nil, ErrTransformMismatch
	}

	aOut := NewBuilder()
	bOut := NewBuilder()
	c := newCursorPair(a.ops, b.ops)

	for !c.done() {
		switch {
		case c.aIsInsert():
			// a's insert wins the tie: it is retained in a' output position
			// and b' retains past the units a is about to insert.
			ins := c.aInsert()
			aOut.Insert(ins)
			bOut.Retain(len(ins))
			c.advanceA(len(ins))

		case c.bIsInsert():
			ins := c.bInsert()
			aOut.Retain(len(ins))
			bOut.Insert(ins)
			c.advanceB(len(ins))

		case c.aMissing():
			return nil, nil, ErrMalformedChangeSet
		case c.bMissing():
			return nil, nil, ErrMalformedChangeSet

		case c.aIsRetain() && c.bIsRetain():
			n := min(c.aLen(), c.bLen())
			aOut.Retain(n)
			bOut.Retain(n)
			c.advanceA(n)
			c.advanceB(n)

		case c.aIsDelete() && c.bIsDelete():
			// Both sides delete the same span: neither needs to re-delete
			// against the other's output.
			n := min(c.aLen(), c.bLen())
			c.advanceA(n)
			c.advanceB(n)

		case c.aIsDelete() && c.bIsRetain():
			n := min(c.aLen(), c.bLen())
			aOut.Delete(n)
			c.advanceA(n)
			c.advanceB(n)

		case c.aIsRetain() && c.bIsDelete():
			n := min(c.aLen(), c.bLen())
			bOut.Delete(n)
			c.advanceA(n)
			c.advanceB(n)

		default:
			return nil, nil, ErrMalformedChangeSet
		}
	}

	return aOut.Build(), bOut.Build(), nil
}
