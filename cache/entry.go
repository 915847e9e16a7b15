package cache

import (
	"encoding/binary"
	"errors"
)

// TrailerSize is the length of the big-endian wasm/js length trailer.
const TrailerSize = 16

// ErrCorruptEntry is returned when a stored entry is shorter than its trailer
// or its lengths do not fit inside it.
var ErrCorruptEntry = errors.New("corrupt cache entry")

// Entry is a cached build: the compressed packaged artifact plus the segment
// lengths needed to slice it once decompressed.
type Entry struct {
	WasmLength uint64
	JSLength   uint64
	Body       []byte
}

// Encode appends the length trailer to the body.
func Encode(e Entry) []byte {
	out := make([]byte, 0, len(e.Body)+TrailerSize)
	out = append(out, e.Body...)
	out = binary.BigEndian.AppendUint64(out, e.WasmLength)
	out = binary.BigEndian.AppendUint64(out, e.JSLength)
	return out
}

// Decode splits the trailer off data. The returned body aliases data.
func Decode(data []byte) (Entry, error) {
	if len(data) < TrailerSize {
		return Entry{}, ErrCorruptEntry
	}
	n := len(data) - TrailerSize
	return Entry{
		WasmLength: binary.BigEndian.Uint64(data[n : n+8]),
		JSLength:   binary.BigEndian.Uint64(data[n+8:]),
		Body:       data[:n:n],
	}, nil
}
