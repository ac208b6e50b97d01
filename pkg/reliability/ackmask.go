// Package reliability implements the receive ack mask and the send-side
// resend queue plus RTO estimator — the two halves the connection
// composes into its reliability engine. Wrap-safe sequence comparisons
// delegate to pkg/wire's lithdew/seq-backed helpers instead of
// reimplementing them here.
package reliability

import (
	"github.com/ventosilenzioso/reliudp/pkg/protocol"
	"github.com/ventosilenzioso/reliudp/pkg/wire"
)

// maxAckWireBits is the width of protocol.Ack's Mask field on the wire.
// AckMask's internal window may track more bits than this for
// diagnostics; ToAckRecord always truncates to this width when producing
// the wire record (see DESIGN.md's Open Questions).
const maxAckWireBits = 16

// AckMask tracks a sliding window of received reliable packet ids as
// (base_seq, bitmap, initialized).
type AckMask struct {
	width       int
	widthMask   uint64
	baseSeq     uint16
	bitmap      uint64
	initialized bool
}

// NewAckMask constructs an AckMask with the given window width in bits
// (default 64, clamped to [1, 64]).
func NewAckMask(widthBits int) *AckMask {
	if widthBits <= 0 {
		widthBits = 64
	}
	if widthBits > 64 {
		widthBits = 64
	}
	var mask uint64
	if widthBits == 64 {
		mask = ^uint64(0)
	} else {
		mask = (uint64(1) << uint(widthBits)) - 1
	}
	return &AckMask{width: widthBits, widthMask: mask}
}

// NoteRecv records receipt of a reliable packet id.
func (m *AckMask) NoteRecv(rid uint16) {
	if !m.initialized {
		m.baseSeq = rid
		m.initialized = true
		return
	}
	if rid == m.baseSeq {
		return
	}
	if wire.SeqGreaterU16(rid, m.baseSeq) {
		distance := wire.SeqDistanceU16(rid, m.baseSeq)
		m.slideForward(rid, distance)
		m.markReceived(uint64(distance) - 1)
	} else {
		distance := wire.SeqDistanceU16(m.baseSeq, rid)
		m.markReceived(uint64(distance) - 1)
	}
}

func (m *AckMask) slideForward(rid uint16, distance uint16) {
	if distance >= 64 {
		m.bitmap = 0
	} else {
		m.bitmap = (m.bitmap << distance) & m.widthMask
	}
	m.baseSeq = rid
}

func (m *AckMask) markReceived(distance uint64) {
	if distance < uint64(m.width) {
		m.bitmap |= 1 << distance
	}
}

// Initialized reports whether any NoteRecv has occurred yet.
func (m *AckMask) Initialized() bool { return m.initialized }

// BaseSeq returns the current window base.
func (m *AckMask) BaseSeq() uint16 { return m.baseSeq }

// ToAckRecord builds the wire Ack record, truncating the internal window
// to min(width, 8*maxBytes, maxAckWireBits) bits.
func (m *AckMask) ToAckRecord(maxBytes int) protocol.Ack {
	nbits := m.width
	if requested := maxBytes * 8; requested < nbits {
		nbits = requested
	}
	if nbits > maxAckWireBits {
		nbits = maxAckWireBits
	}
	var truncMask uint64
	if nbits >= 64 {
		truncMask = ^uint64(0)
	} else {
		truncMask = (uint64(1) << uint(nbits)) - 1
	}
	return protocol.Ack{AckBase: m.baseSeq, Mask: uint16(m.bitmap & truncMask)}
}

// ExpandAck returns every reliable id the ack record's base+mask claims to
// have received: ack_base itself plus, for each set bit i (1-indexed
// LSB-first) of mask, ack_base - i.
func ExpandAck(ack protocol.Ack) []uint16 {
	out := []uint16{ack.AckBase}
	for i := 0; i < 16; i++ {
		if ack.Mask&(1<<uint(i)) != 0 {
			out = append(out, ack.AckBase-uint16(i+1))
		}
	}
	return out
}
