package changeset

import "unicode/utf16"

// EncodeUTF16 converts a Go string to its UTF-16 code-unit sequence, the
// unit every position and length in this package is measured in.
func EncodeUTF16(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

// DecodeUTF16 converts a UTF-16 code-unit sequence back to a Go string.
// Unpaired surrogates decode to the Unicode replacement character, same as
// the standard library; callers that need byte-exact round-tripping of
// arbitrary code units (including unpaired surrogates) should keep working
// with the []uint16 form directly rather than going through a Go string.
func DecodeUTF16(u []uint16) []rune {
	return utf16.Decode(u)
}
