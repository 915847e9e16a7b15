package cache

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/isdmx/playbuild/toolchain"
)

// Key identifies a build by its minified source, version and channel.
type Key [16]byte

// String renders the key as 32 lowercase hex characters, which is also its
// file name in the store.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// ParseKey parses the hex form produced by String, in either case.
func ParseKey(s string) (Key, error) {
	var k Key
	raw, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("invalid cache key %q: %w", s, err)
	}
	if len(raw) != len(k) {
		return k, fmt.Errorf("invalid cache key %q: want %d bytes, got %d", s, len(k), len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

// NewKey hashes already minified source together with the version and
// channel codes. The codes are appended after a zero separator with fixed
// widths so the encoding never shifts when versions are added.
func NewKey(minified string, version toolchain.Version, channel toolchain.Channel) Key {
	buf := make([]byte, 0, len(minified)+4)
	buf = append(buf, minified...)
	buf = append(buf, 0)
	buf = binary.BigEndian.AppendUint16(buf, version.Code())
	buf = append(buf, channel.Code())

	h1, h2 := murmur3.Sum128(buf)
	var k Key
	binary.BigEndian.PutUint64(k[:8], h1)
	binary.BigEndian.PutUint64(k[8:], h2)
	return k
}

// KeyFor minifies code and derives its key. It fails when the source cannot
// be tokenized, in which case the build is served uncached.
func KeyFor(code string, version toolchain.Version, channel toolchain.Channel) (Key, error) {
	minified, err := Minify(code)
	if err != nil {
		return Key{}, fmt.Errorf("failed to minify source: %w", err)
	}
	return NewKey(minified, version, channel), nil
}
