package changeset

// cursorPair walks two operation lists in lockstep, tracking partial
// consumption of whichever op is longer so Compose and Transform can share
// the same bookkeeping instead of each re-deriving it.
type cursorPair struct {
	aOps, bOps     []Op
	aIdx, bIdx     int
	aOff, bOff     int // units already consumed from aOps[aIdx] / bOps[bIdx]
}

func newCursorPair(a, b []Op) *cursorPair {
	return &cursorPair{aOps: a, bOps: b}
}

func (c *cursorPair) curA() (Op, bool) {
	if c.aIdx >= len(c.aOps) {
		return nil, false
	}
	return c.aOps[c.aIdx], true
}

func (c *cursorPair) curB() (Op, bool) {
	if c.bIdx >= len(c.bOps) {
		return nil, false
	}
	return c.bOps[c.bIdx], true
}

func (c *cursorPair) done() bool {
	return c.aIdx >= len(c.aOps) && c.bIdx >= len(c.bOps)
}

func (c *cursorPair) aMissing() bool {
	_, ok := c.curA()
	return !ok
}

func (c *cursorPair) bMissing() bool {
	_, ok := c.curB()
	return !ok
}

func (c *cursorPair) aIsDelete() bool {
	op, ok := c.curA()
	return ok && op.Kind() == KindDelete
}

func (c *cursorPair) bIsInsert() bool {
	op, ok := c.curB()
	return ok && op.Kind() == KindInsert
}

func (c *cursorPair) aIsInsert() bool {
	op, ok := c.curA()
	return ok && op.Kind() == KindInsert
}

func (c *cursorPair) bIsDelete() bool {
	op, ok := c.curB()
	return ok && op.Kind() == KindDelete
}

func (c *cursorPair) aIsRetain() bool {
	op, ok := c.curA()
	return ok && op.Kind() == KindRetain
}

func (c *cursorPair) bIsRetain() bool {
	op, ok := c.curB()
	return ok && op.Kind() == KindRetain
}

// aLen/bLen return the units remaining in the current op after accounting
// for partial consumption.
func (c *cursorPair) aLen() int {
	op, _ := c.curA()
	return op.Len() - c.aOff
}

func (c *cursorPair) bLen() int {
	op, _ := c.curB()
	return op.Len() - c.bOff
}

// aInsert/bInsert return the remaining (unconsumed) suffix of the current
// Insert op's code units.
func (c *cursorPair) aInsert() Insert {
	op, _ := c.curA()
	return op.(Insert)[c.aOff:]
}

func (c *cursorPair) bInsert() Insert {
	op, _ := c.curB()
	return op.(Insert)[c.bOff:]
}

// advanceA/advanceB consume n units from the current op, moving to the
// next op when it is fully consumed.
func (c *cursorPair) advanceA(n int) {
	c.aOff += n
	if op, ok := c.curA(); ok && c.aOff >= op.Len() {
		c.aIdx++
		c.aOff = 0
	}
}

func (c *cursorPair) advanceB(n int) {
	c.bOff += n
	if op, ok := c.curB(); ok && c.bOff >= op.Len() {
		c.bIdx++
		c.bOff = 0
	}
}
