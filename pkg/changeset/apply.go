package changeset

// Apply walks cs left to right over text (a UTF-16 code-unit sequence),
// copying retained units, skipping deleted ones, and splicing in inserted
// ones, and returns the resulting text.
//
// Apply fails with ErrLengthMismatch if cs.InputLen() != len(text).
func Apply(cs *ChangeSet, text []uint16) ([]uint16, error) {
	if cs.inputLen != len(text) {
		return nil, ErrLengthMismatch
	}

	out := make([]uint16, 0, cs.outputLen)
	pos := 0
	for _, op := range cs.ops {
		switch v := op.(type) {
		case Retain:
			out = append(out, text[pos:pos+int(v)]...)
			pos += int(v)
		case Delete:
			pos += int(v)
		case Insert:
			out = append(out, v...)
		}
	}
	return out, nil
}

// ApplyString is a convenience wrapper around Apply for Go strings.
func ApplyString(cs *ChangeSet, text string) (string, error) {
	out, err := Apply(cs, EncodeUTF16(text))
	if err != nil {
		return "", err
	}
	return string(DecodeUTF16(out)), nil
}
