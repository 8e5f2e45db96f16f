package changeset

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
)

// Wire discriminators, fixed by the protocol: any decoder encountering a
// value outside this set must reject the change set as malformed.
const (
	tagRetain = 1
	tagInsert = 2
	tagDelete = 3
)

// wireOp is the JSON shape of a single operation: a discriminator plus
// whichever payload field applies. Insert.Units holds one UTF-16 code unit
// per element; a decoder that encounters a value above 0xFFFF must reject
// the whole change set rather than silently truncating it.
type wireOp struct {
	Op    int     `json:"op"`
	N     int     `json:"n,omitempty"`
	Units []int32 `json:"units,omitempty"`
}

// MarshalJSON encodes cs as a length-tagged list of operations, per the
// wire format: each operation carries a discriminator (1=Retain,
// 2=Insert, 3=Delete) and its payload.
func (cs *ChangeSet) MarshalJSON() ([]byte, error) {
	wire := make([]wireOp, 0, len(cs.ops))
	for _, op := range cs.ops {
		switch v := op.(type) {
		case Retain:
			wire = append(wire, wireOp{Op: tagRetain, N: int(v)})
		case Delete:
			wire = append(wire, wireOp{Op: tagDelete, N: int(v)})
		case Insert:
			units := make([]int32, len(v))
			for i, u := range v {
				units[i] = int32(u)
			}
			wire = append(wire, wireOp{Op: tagInsert, Units: units})
		}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes cs from the wire format described on MarshalJSON.
// It rejects any discriminator outside {1,2,3} and any Insert unit outside
// 0..0xFFFF with ErrMalformedChangeSet, and re-derives InputLen/OutputLen
// from the decoded ops rather than trusting an externally supplied value.
func (cs *ChangeSet) UnmarshalJSON(data []byte) error {
	var wire []wireOp
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	b := NewBuilder()
	for _, w := range wire {
		switch w.Op {
		case tagRetain:
			if w.N < 0 {
				return ErrMalformedChangeSet
			}
			b.Retain(w.N)
		case tagDelete:
			if w.N < 0 {
				return ErrMalformedChangeSet
			}
			b.Delete(w.N)
		case tagInsert:
			units := make(Insert, len(w.Units))
			for i, u := range w.Units {
				if u < 0 || u > 0xFFFF {
					return ErrMalformedChangeSet
				}
				units[i] = uint16(u)
			}
			b.Insert(units)
		default:
			return ErrMalformedChangeSet
		}
	}

	built := b.Build()
	cs.ops = built.ops
	cs.inputLen = built.inputLen
	cs.outputLen = built.outputLen
	return nil
}

// MarshalBinary encodes cs into the compact form stored in the
// document_revisions.change_set_blob column: a uint32 op count followed
// by, per op, a one-byte discriminator and its payload (a uint32 length
// for Retain/Delete, a uint32 unit count plus that many uint16 code units
// for Insert). This is not the wire-protocol JSON encoding; it exists
// purely to keep the on-disk revision log compact.
func (cs *ChangeSet) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(cs.ops))); err != nil {
		return nil, err
	}
	for _, op := range cs.ops {
		switch v := op.(type) {
		case Retain:
			buf.WriteByte(tagRetain)
			binary.Write(&buf, binary.BigEndian, uint32(v))
		case Delete:
			buf.WriteByte(tagDelete)
			binary.Write(&buf, binary.BigEndian, uint32(v))
		case Insert:
			buf.WriteByte(tagInsert)
			binary.Write(&buf, binary.BigEndian, uint32(len(v)))
			for _, u := range v {
				binary.Write(&buf, binary.BigEndian, u)
			}
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes the format written by MarshalBinary.
func (cs *ChangeSet) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return ErrMalformedChangeSet
	}

	b := NewBuilder()
	for i := uint32(0); i < count; i++ {
		tag, err := r.ReadByte()
		if err != nil {
			return ErrMalformedChangeSet
		}
		switch tag {
		case tagRetain:
			var n uint32
			if err := binary.Read(r, binary.BigEndian, &n); err != nil {
				return ErrMalformedChangeSet
			}
			b.Retain(int(n))
		case tagDelete:
			var n uint32
			if err := binary.Read(r, binary.BigEndian, &n); err != nil {
				return ErrMalformedChangeSet
			}
			b.Delete(int(n))
		case tagInsert:
			var n uint32
			if err := binary.Read(r, binary.BigEndian, &n); err != nil {
				return ErrMalformedChangeSet
			}
			units := make(Insert, n)
			for j := uint32(0); j < n; j++ {
				if err := binary.Read(r, binary.BigEndian, &units[j]); err != nil {
					return ErrMalformedChangeSet
				}
			}
			b.Insert(units)
		default:
			return ErrMalformedChangeSet
		}
	}

	built := b.Build()
	cs.ops = built.ops
	cs.inputLen = built.inputLen
	cs.outputLen = built.outputLen
	return nil
}
