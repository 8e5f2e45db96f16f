package sqlite

import (
	"encoding/binary"
	"errors"
)

var errMalformedSnapshot = errors.New("storage: malformed snapshot blob")

// encodeUTF16Blob serializes a UTF-16 code unit slice as a flat
// little-endian byte blob for storage in document_snapshots.text_blob.
func encodeUTF16Blob(text []uint16) ([]byte, error) {
	out := make([]byte, len(text)*2)
	for i, u := range text {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out, nil
}

// decodeUTF16Blob is the inverse of encodeUTF16Blob.
func decodeUTF16Blob(blob []byte) ([]uint16, error) {
	if len(blob)%2 != 0 {
		return nil, errMalformedSnapshot
	}
	out := make([]uint16, len(blob)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(blob[i*2:])
	}
	return out, nil
}
