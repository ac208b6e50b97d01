package protocol

import (
	"fmt"

	"github.com/ventosilenzioso/reliudp/pkg/wire"
)

// RecordTooLarge is raised by the builder when a single encoded record
// alone exceeds the envelope budget. The connection catches it and routes
// the record through the fragmenter instead.
type RecordTooLarge struct {
	Body    Body
	Flags   uint8
	Encoded []byte
}

func (e *RecordTooLarge) Error() string {
	return fmt.Sprintf("protocol: record type %d (%d bytes) exceeds envelope budget", e.Body.TypeCode(), len(e.Encoded))
}

// PackedRecord is per-record observability bookkeeping for a sealed
// envelope: which envelope it landed in, its type code, and its encoded
// size.
type PackedRecord struct {
	EnvelopeIndex int
	TypeCode      uint8
	Size          int
}

// Envelope is one sealed, MTU-budgeted concatenation of record TLVs.
type Envelope struct {
	Payload  []byte
	Reliable bool
}

// Builder streams records into a sequence of budget-sized envelopes. An
// envelope is reliable iff it contains at least one reliable record;
// reliable and unreliable records otherwise share envelopes freely.
type Builder struct {
	budget    int
	current   []byte
	curRelia  bool
	envelopes []Envelope
	index     []PackedRecord
}

// NewBuilder constructs a Builder with the given per-packet payload budget
// (mtu - PacketHeaderSize).
func NewBuilder(budget int) *Builder {
	return &Builder{budget: budget}
}

// Add encodes body and appends it to the current envelope, sealing and
// starting a new envelope first if it would not fit. Returns
// *RecordTooLarge if body alone exceeds budget.
func (b *Builder) Add(body Body, flags uint8) error {
	w := wire.NewWriter(RecordHeaderSize + 32)
	hdr := RecordHeader{Type: body.TypeCode(), Flags: flags}
	bodyBuf := wire.NewWriter(32)
	body.Encode(bodyBuf)
	hdr.Length = uint16(bodyBuf.Len())
	hdr.Encode(w)
	w.Raw(bodyBuf.Bytes())
	encoded := w.Bytes()

	if len(encoded) > b.budget {
		return &RecordTooLarge{Body: body, Flags: flags, Encoded: encoded}
	}

	if len(b.current)+len(encoded) > b.budget && len(b.current) > 0 {
		b.seal()
	}

	envIdx := len(b.envelopes)
	b.current = append(b.current, encoded...)
	if flags&RecordFlagReliable != 0 {
		b.curRelia = true
	}
	b.index = append(b.index, PackedRecord{EnvelopeIndex: envIdx, TypeCode: body.TypeCode(), Size: len(encoded)})
	return nil
}

func (b *Builder) seal() {
	if len(b.current) == 0 {
		return
	}
	b.envelopes = append(b.envelopes, Envelope{Payload: b.current, Reliable: b.curRelia})
	b.current = nil
	b.curRelia = false
}

// Finish seals any open envelope and returns every sealed envelope plus the
// per-record packing index, resetting the builder for reuse.
func (b *Builder) Finish() ([]Envelope, []PackedRecord) {
	b.seal()
	envelopes := b.envelopes
	index := b.index
	b.envelopes = nil
	b.index = nil
	return envelopes, index
}

// DecodedRecord pairs a decoded record header with its body.
type DecodedRecord struct {
	Header RecordHeader
	Body   Body
}

// OpenEnvelope iterates payload decoding successive record TLVs, dispatching
// each body through the closed record-type registry. Any malformed record
// (header overrun, unknown type) fails the whole envelope — callers drop
// the datagram and emit a diagnostic rather than deliver a partial record
// set.
func OpenEnvelope(payload []byte) ([]DecodedRecord, error) {
	r := wire.NewReader(payload)
	var out []DecodedRecord
	for r.Remaining() > 0 {
		hdr, err := DecodeRecordHeader(r)
		if err != nil {
			return nil, err
		}
		bodyBytes, err := r.Raw(int(hdr.Length))
		if err != nil {
			return nil, err
		}
		body, err := DecodeBody(hdr.Type, wire.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		out = append(out, DecodedRecord{Header: hdr, Body: body})
	}
	return out, nil
}
