package changeset

import (
	"math/rand"
)

// randomUTF16 generates a random UTF-16 code-unit sequence for testing.
// Occasionally emits a non-ASCII BMP unit (U+00E9, still a single code
// unit, not a surrogate pair) so tests exercise non-ASCII content without
// needing to reason about surrogate splitting.
func randomUTF16(n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		switch {
		case rand.Float64() < 0.05:
			out[i] = uint16('\n')
		case rand.Float64() < 0.1:
			out[i] = uint16(0x00E9) // e.g. 'é', still one BMP code unit
		default:
			out[i] = uint16('a' + rand.Intn(26))
		}
	}
	return out
}

// randomChangeSet builds a random canonical ChangeSet with InputLen ==
// len(base), mirroring ot.js test/helpers.js randomOperation: repeatedly
// pick Retain, Delete or Insert until base is fully consumed, with an
// occasional trailing Insert.
func randomChangeSet(base []uint16) *ChangeSet {
	b := NewBuilder()
	consumed := 0

	for consumed < len(base) {
		left := len(base) - consumed
		maxLen := left
		if maxLen > 10 {
			maxLen = 10
		}
		n := 1 + rand.Intn(maxLen)

		switch r := rand.Float64(); {
		case r < 0.2:
			b.Insert(randomUTF16(1 + rand.Intn(6)))
		case r < 0.45:
			b.Delete(n)
			consumed += n
		default:
			b.Retain(n)
			consumed += n
		}
	}

	if rand.Float64() < 0.3 {
		b.Insert(randomUTF16(1 + rand.Intn(6)))
	}

	return b.Build()
}
