// Package protocol implements the wire framing: packet, record, and
// fragment headers, the closed record catalog, the envelope
// builder/opener, and the fragmenter/defragmenter.
package protocol

import (
	"github.com/ventosilenzioso/reliudp/pkg/wire"
)

// Magic identifies a reliudp packet on the wire.
var Magic = [2]byte{'R', 'P'}

const Version uint8 = 1

// Packet flag bits.
const (
	FlagReliable uint8 = 1 << 0
	FlagFragment uint8 = 1 << 1
	FlagControl  uint8 = 1 << 2
)

// Record flag bits.
const (
	RecordFlagReliable uint8 = 1 << 0
	RecordFlagUrgent   uint8 = 1 << 1
)

// PacketHeaderSize is the fixed size of the packet header in bytes.
const PacketHeaderSize = 10

// RecordHeaderSize is the fixed size of the record TLV header in bytes.
const RecordHeaderSize = 4

// FragmentHeaderSize is the fixed size of the fragment header in bytes.
const FragmentHeaderSize = 10

// PacketHeader is the 10-byte header in front of every datagram's payload.
type PacketHeader struct {
	Version  uint8
	Flags    uint8
	Seq      uint16
	Rid      uint16
	Reserved uint16
}

func (h PacketHeader) Reliable() bool { return h.Flags&FlagReliable != 0 }
func (h PacketHeader) Fragment() bool { return h.Flags&FlagFragment != 0 }
func (h PacketHeader) Control() bool  { return h.Flags&FlagControl != 0 }

// Encode appends the header's wire bytes to w.
func (h PacketHeader) Encode(w *wire.Writer) {
	w.Raw(Magic[:]).U8(h.Version).U8(h.Flags).U16(h.Seq).U16(h.Rid).U16(h.Reserved)
}

// ErrBadMagic, ErrBadVersion, and ErrReservedNonZero classify malformed
// wire input that causes a packet to be silently discarded rather than
// propagated.
var (
	ErrBadMagic        = wireError("bad magic")
	ErrBadVersion      = wireError("unsupported version")
	ErrReservedNonZero = wireError("reserved field non-zero")
)

type wireError string

func (e wireError) Error() string { return "protocol: " + string(e) }

// DecodePacketHeader reads and validates a PacketHeader from r.
func DecodePacketHeader(r *wire.Reader) (PacketHeader, error) {
	var h PacketHeader
	magic, err := r.Raw(2)
	if err != nil {
		return h, err
	}
	if magic[0] != Magic[0] || magic[1] != Magic[1] {
		return h, ErrBadMagic
	}
	if h.Version, err = r.U8(); err != nil {
		return h, err
	}
	if h.Version != Version {
		return h, ErrBadVersion
	}
	if h.Flags, err = r.U8(); err != nil {
		return h, err
	}
	if h.Seq, err = r.U16(); err != nil {
		return h, err
	}
	if h.Rid, err = r.U16(); err != nil {
		return h, err
	}
	if h.Reserved, err = r.U16(); err != nil {
		return h, err
	}
	if h.Reserved != 0 {
		return h, ErrReservedNonZero
	}
	return h, nil
}

// RecordHeader is the 4-byte TLV header in front of each record in an
// envelope's payload stream.
type RecordHeader struct {
	Type   uint8
	Flags  uint8
	Length uint16
}

func (h RecordHeader) Reliable() bool { return h.Flags&RecordFlagReliable != 0 }
func (h RecordHeader) Urgent() bool   { return h.Flags&RecordFlagUrgent != 0 }

func (h RecordHeader) Encode(w *wire.Writer) {
	w.U8(h.Type).U8(h.Flags).U16(h.Length)
}

func DecodeRecordHeader(r *wire.Reader) (RecordHeader, error) {
	var h RecordHeader
	var err error
	if h.Type, err = r.U8(); err != nil {
		return h, err
	}
	if h.Flags, err = r.U8(); err != nil {
		return h, err
	}
	if h.Length, err = r.U16(); err != nil {
		return h, err
	}
	return h, nil
}

// FragmentHeader precedes a slice of an oversized record's encoded bytes.
type FragmentHeader struct {
	MsgID    uint16
	Index    uint8
	Count    uint8
	TotalLen uint16
	MsgCRC32 uint32
}

func (h FragmentHeader) Encode(w *wire.Writer) {
	w.U16(h.MsgID).U8(h.Index).U8(h.Count).U16(h.TotalLen).U32(h.MsgCRC32)
}

func DecodeFragmentHeader(r *wire.Reader) (FragmentHeader, error) {
	var h FragmentHeader
	var err error
	if h.MsgID, err = r.U16(); err != nil {
		return h, err
	}
	if h.Index, err = r.U8(); err != nil {
		return h, err
	}
	if h.Count, err = r.U8(); err != nil {
		return h, err
	}
	if h.TotalLen, err = r.U16(); err != nil {
		return h, err
	}
	if h.MsgCRC32, err = r.U32(); err != nil {
		return h, err
	}
	return h, nil
}
