package wire

import (
	"errors"
	"fmt"
)

// ErrBufferOverrun is returned by Reader methods when the underlying buffer
// is shorter than the field being decoded. It is a sentinel so callers can
// classify it as malformed wire input and drop the unit rather than
// propagate it.
var ErrBufferOverrun = errors.New("wire: buffer overrun")

// Writer accumulates a packable wire object's encoded bytes. Record and
// header types call its methods in field order instead of hand-rolling
// byte slicing.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with sizeHint as its backing array's initial
// capacity.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

func (w *Writer) U8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) U16(v uint16) *Writer {
	var tmp [2]byte
	PutU16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
	return w
}

func (w *Writer) U32(v uint32) *Writer {
	var tmp [4]byte
	PutU32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
	return w
}

// Raw appends b verbatim, with no length prefix — used for already-framed
// payloads (record bodies appended after a record header, for example).
func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// LengthPrefixedBytes writes a u16 length followed by that many raw bytes,
// the encoding used throughout record bodies for variable-length fields.
// Panics if len(b) overflows a u16 — a configuration error, not a wire
// error, since callers are expected to have already fragmented oversized
// payloads before reaching per-field encoding.
func (w *Writer) LengthPrefixedBytes(b []byte) *Writer {
	if len(b) > 0xFFFF {
		panic(fmt.Sprintf("wire: length-prefixed field too large: %d bytes", len(b)))
	}
	w.U16(uint16(len(b)))
	w.Raw(b)
	return w
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len reports how many bytes have been written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Reader decodes a packable wire object field by field from a fixed
// buffer, tracking an internal cursor and returning ErrBufferOverrun on
// underrun.
type Reader struct {
	buf    []byte
	offset int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Remaining() int {
	return len(r.buf) - r.offset
}

func (r *Reader) take(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, ErrBufferOverrun
	}
	b := r.buf[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func (r *Reader) U8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) U16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return U16(b), nil
}

func (r *Reader) U32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return U32(b), nil
}

// Raw returns the next n bytes verbatim without copying.
func (r *Reader) Raw(n int) ([]byte, error) {
	return r.take(n)
}

// LengthPrefixedBytes reads a u16-length-prefixed bytes field. A zero
// length decodes to nil.
func (r *Reader) LengthPrefixedBytes() ([]byte, error) {
	n, err := r.U16()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return r.take(int(n))
}

// Rest returns every remaining byte and moves the cursor to the end of the
// buffer.
func (r *Reader) Rest() []byte {
	b := r.buf[r.offset:]
	r.offset = len(r.buf)
	return b
}
