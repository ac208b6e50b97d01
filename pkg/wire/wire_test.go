package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter(16)
	w.U8(0x42).U16(1234).U32(567890).LengthPrefixedBytes([]byte("hello"))

	r := NewReader(w.Bytes())

	b, err := r.U8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x42), b)

	u16, err := r.U16()
	require.NoError(t, err)
	assert.Equal(t, uint16(1234), u16)

	u32, err := r.U32()
	require.NoError(t, err)
	assert.Equal(t, uint32(567890), u32)

	blob, err := r.LengthPrefixedBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), blob)

	assert.Zero(t, r.Remaining())
}

func TestReaderOverrun(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.U32()
	assert.ErrorIs(t, err, ErrBufferOverrun)
}

func TestSeqLessU16Wraparound(t *testing.T) {
	cases := []struct {
		a, b uint16
		less bool
	}{
		{0, 1, true},
		{1, 0, false},
		{65535, 0, true},  // wraps forward
		{0, 65535, false}, // 65535 is "before" 0 going the other way
		{10, 10, false},
	}
	for _, c := range cases {
		assert.Equalf(t, c.less, SeqLessU16(c.a, c.b), "SeqLessU16(%d, %d)", c.a, c.b)
	}
}

func TestSeqDistanceU16(t *testing.T) {
	assert.Equal(t, uint16(5), SeqDistanceU16(15, 10))
	assert.Equal(t, uint16(1), SeqDistanceU16(0, 65535))
}
