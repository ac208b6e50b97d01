// Package wire implements the fixed-width integer codecs and the
// declarative struct<->bytes packable codec shared by every wire object in
// reliudp: packet headers, record headers, fragment headers, and record
// bodies. All integers are big-endian on the wire.
//
// Sequence-space comparisons treat sequence numbers as points on a
// modulo-2^16 (or modulo-2^32) circle rather than totally-ordered
// integers, so a counter that wraps past its maximum value still compares
// correctly against recent neighbors.
package wire

import (
	"encoding/binary"

	"github.com/lithdew/seq"
)

// PutU16 writes v big-endian into buf, which must have length >= 2.
func PutU16(buf []byte, v uint16) {
	binary.BigEndian.PutUint16(buf, v)
}

// U16 reads a big-endian uint16 from buf, which must have length >= 2.
func U16(buf []byte) uint16 {
	return binary.BigEndian.Uint16(buf)
}

// PutU32 writes v big-endian into buf, which must have length >= 4.
func PutU32(buf []byte, v uint32) {
	binary.BigEndian.PutUint32(buf, v)
}

// U32 reads a big-endian uint32 from buf, which must have length >= 4.
func U32(buf []byte) uint32 {
	return binary.BigEndian.Uint32(buf)
}

// SeqLessU16 reports whether a precedes b in modulo-2^16 sequence space:
// a < b iff (a - b) mod 2^16 > 2^15.
func SeqLessU16(a, b uint16) bool {
	return seq.GT(b, a)
}

// SeqGreaterU16 reports whether a follows b in modulo-2^16 sequence space.
func SeqGreaterU16(a, b uint16) bool {
	return seq.GT(a, b)
}

// SeqDistanceU16 is the unsigned forward distance from older to newer,
// i.e. the number of wrap-safe increments separating them.
func SeqDistanceU16(newer, older uint16) uint16 {
	return newer - older
}

const half32 = uint32(1) << 31

// SeqLessU32 is SeqLessU16's 32-bit counterpart, used by the ping manager's
// millisecond clock: a precedes b iff (b-a) mod 2^32 is in the "positive"
// half.
func SeqLessU32(a, b uint32) bool {
	return (b - a) != 0 && (b-a) < half32
}

// SeqGreaterU32 reports whether a follows b in modulo-2^32 space.
func SeqGreaterU32(a, b uint32) bool {
	return SeqLessU32(b, a)
}
