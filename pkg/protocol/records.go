package protocol

import (
	"github.com/ventosilenzioso/reliudp/pkg/wire"
)

// Record type codes.
const (
	TypeHello      uint8 = 1
	TypeWelcome    uint8 = 2
	TypeAuth       uint8 = 3
	TypeAuthResult uint8 = 4
	TypeDisconnect uint8 = 5
	TypeAck        uint8 = 6
	TypePing       uint8 = 7
	TypePong       uint8 = 8
	TypeSnapshot   uint8 = 9
	TypeDelta      uint8 = 10
	TypeInput      uint8 = 11
)

// Body is a decoded record body: a closed sum type where each concrete
// Body owns its type code, its reliable-by-default flag, and its own
// encoder; a single dispatch table (decoders, below) maps type codes to
// decode functions.
type Body interface {
	TypeCode() uint8
	ReliableByDefault() bool
	Encode(w *wire.Writer)
}

// Hello is sent unreliably by a connecting peer to begin the handshake.
type Hello struct {
	ClientVersion uint32
	Nickname      []byte
}

func (Hello) TypeCode() uint8        { return TypeHello }
func (Hello) ReliableByDefault() bool { return false }
func (b Hello) Encode(w *wire.Writer) {
	w.U32(b.ClientVersion).LengthPrefixedBytes(b.Nickname)
}
func decodeHello(r *wire.Reader) (Body, error) {
	var b Hello
	var err error
	if b.ClientVersion, err = r.U32(); err != nil {
		return nil, err
	}
	if b.Nickname, err = r.LengthPrefixedBytes(); err != nil {
		return nil, err
	}
	return b, nil
}

// Welcome is the reliable reply accepting a Hello.
type Welcome struct {
	ConnID     uint16
	TickRateHz uint16
}

func (Welcome) TypeCode() uint8        { return TypeWelcome }
func (Welcome) ReliableByDefault() bool { return true }
func (b Welcome) Encode(w *wire.Writer) {
	w.U16(b.ConnID).U16(b.TickRateHz)
}
func decodeWelcome(r *wire.Reader) (Body, error) {
	var b Welcome
	var err error
	if b.ConnID, err = r.U16(); err != nil {
		return nil, err
	}
	if b.TickRateHz, err = r.U16(); err != nil {
		return nil, err
	}
	return b, nil
}

// Auth carries an opaque credential token.
type Auth struct {
	Token []byte
}

func (Auth) TypeCode() uint8        { return TypeAuth }
func (Auth) ReliableByDefault() bool { return true }
func (b Auth) Encode(w *wire.Writer) {
	w.LengthPrefixedBytes(b.Token)
}
func decodeAuth(r *wire.Reader) (Body, error) {
	var b Auth
	var err error
	if b.Token, err = r.LengthPrefixedBytes(); err != nil {
		return nil, err
	}
	return b, nil
}

// AuthResult answers an Auth.
type AuthResult struct {
	OK     bool
	Reason []byte
}

func (AuthResult) TypeCode() uint8        { return TypeAuthResult }
func (AuthResult) ReliableByDefault() bool { return true }
func (b AuthResult) Encode(w *wire.Writer) {
	var ok uint8
	if b.OK {
		ok = 1
	}
	w.U8(ok).LengthPrefixedBytes(b.Reason)
}
func decodeAuthResult(r *wire.Reader) (Body, error) {
	var b AuthResult
	ok, err := r.U8()
	if err != nil {
		return nil, err
	}
	b.OK = ok != 0
	if b.Reason, err = r.LengthPrefixedBytes(); err != nil {
		return nil, err
	}
	return b, nil
}

// Disconnect reason codes.
const (
	DisconnectClientQuit    uint8 = 0
	DisconnectKicked        uint8 = 1
	DisconnectTimeout       uint8 = 2
	DisconnectProtocolError uint8 = 3
)

// Disconnect is a best-effort, unreliable notice.
type Disconnect struct {
	Reason uint8
}

func (Disconnect) TypeCode() uint8        { return TypeDisconnect }
func (Disconnect) ReliableByDefault() bool { return false }
func (b Disconnect) Encode(w *wire.Writer) { w.U8(b.Reason) }
func decodeDisconnect(r *wire.Reader) (Body, error) {
	reason, err := r.U8()
	if err != nil {
		return nil, err
	}
	return Disconnect{Reason: reason}, nil
}

// Ack carries the receive ack-mask's compact representation. Travels
// unreliably.
type Ack struct {
	AckBase uint16
	Mask    uint16
}

func (Ack) TypeCode() uint8        { return TypeAck }
func (Ack) ReliableByDefault() bool { return false }
func (b Ack) Encode(w *wire.Writer) { w.U16(b.AckBase).U16(b.Mask) }
func decodeAck(r *wire.Reader) (Body, error) {
	var b Ack
	var err error
	if b.AckBase, err = r.U16(); err != nil {
		return nil, err
	}
	if b.Mask, err = r.U16(); err != nil {
		return nil, err
	}
	return b, nil
}

// Ping/Pong carry an id and a millisecond timestamp. Unreliable by
// default — RTT sampling tolerates loss.
type Ping struct {
	ID uint16
	Ms uint32
}

func (Ping) TypeCode() uint8        { return TypePing }
func (Ping) ReliableByDefault() bool { return false }
func (b Ping) Encode(w *wire.Writer) { w.U16(b.ID).U32(b.Ms) }
func decodePing(r *wire.Reader) (Body, error) {
	var b Ping
	var err error
	if b.ID, err = r.U16(); err != nil {
		return nil, err
	}
	if b.Ms, err = r.U32(); err != nil {
		return nil, err
	}
	return b, nil
}

type Pong struct {
	ID uint16
	Ms uint32
}

func (Pong) TypeCode() uint8        { return TypePong }
func (Pong) ReliableByDefault() bool { return false }
func (b Pong) Encode(w *wire.Writer) { w.U16(b.ID).U32(b.Ms) }
func decodePong(r *wire.Reader) (Body, error) {
	var b Pong
	var err error
	if b.ID, err = r.U16(); err != nil {
		return nil, err
	}
	if b.Ms, err = r.U32(); err != nil {
		return nil, err
	}
	return b, nil
}

// Snapshot carries an opaque, externally-produced state blob. Reliable by
// default.
type Snapshot struct {
	Blob []byte
}

func (Snapshot) TypeCode() uint8        { return TypeSnapshot }
func (Snapshot) ReliableByDefault() bool { return true }
func (b Snapshot) Encode(w *wire.Writer) { w.LengthPrefixedBytes(b.Blob) }
func decodeSnapshot(r *wire.Reader) (Body, error) {
	blob, err := r.LengthPrefixedBytes()
	if err != nil {
		return nil, err
	}
	return Snapshot{Blob: blob}, nil
}

// Delta carries an incremental opaque ECS blob. Reliable by default.
type Delta struct {
	Blob []byte
}

func (Delta) TypeCode() uint8        { return TypeDelta }
func (Delta) ReliableByDefault() bool { return true }
func (b Delta) Encode(w *wire.Writer) { w.LengthPrefixedBytes(b.Blob) }
func decodeDelta(r *wire.Reader) (Body, error) {
	blob, err := r.LengthPrefixedBytes()
	if err != nil {
		return nil, err
	}
	return Delta{Blob: blob}, nil
}

// Input carries a per-tick opaque input command blob. Reliable by default.
type Input struct {
	Blob []byte
}

func (Input) TypeCode() uint8        { return TypeInput }
func (Input) ReliableByDefault() bool { return true }
func (b Input) Encode(w *wire.Writer) { w.LengthPrefixedBytes(b.Blob) }
func decodeInput(r *wire.Reader) (Body, error) {
	blob, err := r.LengthPrefixedBytes()
	if err != nil {
		return nil, err
	}
	return Input{Blob: blob}, nil
}

// decoders is the closed record-type dispatch table: populated once at
// package init, immutable thereafter.
var decoders = map[uint8]func(*wire.Reader) (Body, error){
	TypeHello:      decodeHello,
	TypeWelcome:    decodeWelcome,
	TypeAuth:       decodeAuth,
	TypeAuthResult: decodeAuthResult,
	TypeDisconnect: decodeDisconnect,
	TypeAck:        decodeAck,
	TypePing:       decodePing,
	TypePong:       decodePong,
	TypeSnapshot:   decodeSnapshot,
	TypeDelta:      decodeDelta,
	TypeInput:      decodeInput,
}

// ErrUnknownRecordType is returned by the opener when a record header
// carries a type code absent from the dispatch table — a
// malformed-wire-input case that fails the whole envelope.
var ErrUnknownRecordType = wireError("unknown record type")

// DecodeBody dispatches on typ to the registered decoder.
func DecodeBody(typ uint8, r *wire.Reader) (Body, error) {
	dec, ok := decoders[typ]
	if !ok {
		return nil, ErrUnknownRecordType
	}
	return dec(r)
}
