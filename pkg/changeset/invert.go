package changeset

// Invert produces the change set that undoes cs, given the text cs was
// applied to (not the result of applying it). Applying cs then Invert(cs,
// text) to the result reproduces text exactly:
//
//	applied, _ := Apply(cs, text)
//	inv, _ := Invert(cs, text)
//	undone, _ := Apply(inv, applied)
//	// undone == text
//
// Invert needs the pre-image text because a Delete carries only a length
// in cs; the deleted units themselves must be read back out of text so
// the inverse can re-Insert them, and an Insert in cs becomes a Delete of
// the same length in the inverse.
func Invert(cs *ChangeSet, text []uint16) (*ChangeSet, error) {
	if cs.inputLen != len(text) {
		return nil, ErrLengthMismatch
	}

	out := NewBuilder()
	pos := 0
	for _, op := range cs.ops {
		switch v := op.(type) {
		case Retain:
			out.Retain(int(v))
			pos += int(v)
		case Delete:
			out.Insert(Insert(text[pos : pos+int(v)]))
			pos += int(v)
		case Insert:
			out.Delete(len(v))
		}
	}
	return out.Build(), nil
}
