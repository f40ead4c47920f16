package byteview

import (
	"encoding/binary"
	"fmt"
)

// View is a read-only window onto a byte buffer. It never allocates for
// variable-length tails: those come back as borrowed slices into the
// underlying buffer.
type View []byte

// Len returns the number of bytes in the view.
func (v View) Len() int {
	return len(v)
}

// require fails with a TruncatedReadError unless at least n bytes are
// available starting at off.
func (v View) require(off, n int) error {
	if off < 0 || n < 0 || off+n > len(v) {
		return newTruncatedReadError(off, n, len(v)-off)
	}
	return nil
}

// Slice returns the borrowed byte range [off, off+n), or a
// TruncatedReadError if it doesn't fit.
func (v View) Slice(off, n int) ([]byte, error) {
	if err := v.require(off, n); err != nil {
		return nil, err
	}
	return v[off : off+n], nil
}

// U8 reads a single byte at off.
func (v View) U8(off int) (uint8, error) {
	if err := v.require(off, 1); err != nil {
		return 0, err
	}
	return v[off], nil
}

// U16LE reads a little-endian uint16 at off.
func (v View) U16LE(off int) (uint16, error) {
	if err := v.require(off, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(v[off:]), nil
}

// U16BE reads a big-endian uint16 at off.
func (v View) U16BE(off int) (uint16, error) {
	if err := v.require(off, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(v[off:]), nil
}

// U32LE reads a little-endian uint32 at off.
func (v View) U32LE(off int) (uint32, error) {
	if err := v.require(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(v[off:]), nil
}

// U32BE reads a big-endian uint32 at off.
func (v View) U32BE(off int) (uint32, error) {
	if err := v.require(off, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(v[off:]), nil
}

// U64LE reads a little-endian uint64 at off.
func (v View) U64LE(off int) (uint64, error) {
	if err := v.require(off, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(v[off:]), nil
}

// U64BE reads a big-endian uint64 at off.
func (v View) U64BE(off int) (uint64, error) {
	if err := v.require(off, 8); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(v[off:]), nil
}

// Enum is a decoded categorical value: either a recognized member of T, or
// the raw integer when it didn't match any known enumeration. It is the Go
// expression of the source tool's "enum_or_int" fallback: the raw value is
// never silently discarded.
type Enum[T ~uint8 | ~uint16 | ~uint32] struct {
	known T
	raw   uint32
	ok    bool
}

// KnownEnum wraps a recognized enumeration member.
func KnownEnum[T ~uint8 | ~uint16 | ~uint32](v T) Enum[T] {
	return Enum[T]{known: v, raw: uint32(v), ok: true}
}

// UnknownEnum wraps a raw value that did not match any known member.
func UnknownEnum[T ~uint8 | ~uint16 | ~uint32](raw uint32) Enum[T] {
	return Enum[T]{raw: raw}
}

// IsKnown reports whether the value matched a known enumeration member.
func (e Enum[T]) IsKnown() bool {
	return e.ok
}

// Known returns the recognized member and true, or the zero value and false.
func (e Enum[T]) Known() (T, bool) {
	return e.known, e.ok
}

// Raw returns the underlying integer regardless of whether it was
// recognized.
func (e Enum[T]) Raw() uint32 {
	return e.raw
}

// Render renders the enum for display and report export: the known
// member's String() when T implements fmt.Stringer, otherwise its bare
// value, falling back to an "unknown(0x..)" form when the value matched
// no recognized member.
func (e Enum[T]) Render() string {
	if e.ok {
		return fmt.Sprintf("%v", e.known)
	}
	return fmt.Sprintf("unknown(%#x)", e.raw)
}
