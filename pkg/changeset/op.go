// Package changeset implements the operational-transformation change-set
// algebra: an immutable, canonicalized list of retain/insert/delete
// operations and the apply/compose/transform/invert functions that operate
// on it.
//
// Positions and lengths are counted in UTF-16 code units throughout, to
// match the browser textarea selection API that ultimately produces these
// change sets. This is a direct port of the ot.js / operational-transform
// algorithms, adapted so Insert payloads carry raw UTF-16 code units
// instead of UTF-8 byte strings, which keeps every length calculation and
// every compose/transform split exact regardless of surrogate pairs.
package changeset

import "fmt"

// Kind identifies the concrete type of an Op.
type Kind int

const (
	// KindRetain advances the cursor without modifying the document.
	KindRetain Kind = iota
	// KindInsert inserts code units at the current cursor position.
	KindInsert
	// KindDelete consumes code units from the input without emitting them.
	KindDelete
)

// Op is a single operation within a ChangeSet.
type Op interface {
	Kind() Kind
	// Len returns the number of UTF-16 code units this op spans: the
	// retain/delete count, or the length of the inserted text.
	Len() int
	String() string
}

// Retain advances the cursor n code units; n must be >= 1 in any
// constructed ChangeSet (the builder drops zero-length ops).
type Retain int

func (r Retain) Kind() Kind    { return KindRetain }
func (r Retain) Len() int      { return int(r) }
func (r Retain) String() string { return fmt.Sprintf("retain(%d)", int(r)) }

// Delete consumes n code units of input, emitting nothing.
type Delete int

func (d Delete) Kind() Kind    { return KindDelete }
func (d Delete) Len() int      { return int(d) }
func (d Delete) String() string { return fmt.Sprintf("delete(%d)", int(d)) }

// Insert emits a non-empty sequence of UTF-16 code units. The payload is
// kept as raw code units (not a Go string) so splitting it during compose
// or transform never has to reason about surrogate pairs or UTF-8
// boundaries: any index between 0 and len(Insert) is a valid split point.
type Insert []uint16

func (s Insert) Kind() Kind  { return KindInsert }
func (s Insert) Len() int    { return len(s) }
func (s Insert) String() string {
	return fmt.Sprintf("insert(%q)", string(DecodeUTF16(s)))
}

// InsertString builds an Insert op from a Go string, encoding it to UTF-16
// code units.
func InsertString(s string) Insert {
	return Insert(EncodeUTF16(s))
}
