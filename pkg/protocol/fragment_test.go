package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventosilenzioso/reliudp/pkg/wire"
)

// encodeRecord mirrors what Builder.Add does internally: header + body.
// The fragmenter always operates on a fully-framed record, not the raw
// application blob.
func encodeRecord(b Body, flags uint8) []byte {
	bodyBuf := wire.NewWriter(64)
	b.Encode(bodyBuf)
	hdr := RecordHeader{Type: b.TypeCode(), Flags: flags, Length: uint16(bodyBuf.Len())}
	w := wire.NewWriter(RecordHeaderSize + bodyBuf.Len())
	hdr.Encode(w)
	w.Raw(bodyBuf.Bytes())
	return w.Bytes()
}

func TestFragmenterSplitsOversizedRecordIntoFiveFragments(t *testing.T) {
	blob := make([]byte, 40)
	for i := range blob {
		blob[i] = 'a'
	}
	encoded := encodeRecord(Delta{Blob: blob}, RecordFlagReliable)

	f := NewFragmenter(20) // fragment_size = 20 - 10 = 10
	fragments := f.Split(encoded)

	require.Len(t, fragments, 5)
	for i, frag := range fragments {
		assert.Equal(t, uint8(i), frag.Header.Index)
		assert.Equal(t, uint8(5), frag.Header.Count)
		assert.Equal(t, uint16(len(encoded)), frag.Header.TotalLen)
	}
}

func TestFragmenterDefragmenterRoundTripAnyOrder(t *testing.T) {
	blob := make([]byte, 100)
	for i := range blob {
		blob[i] = byte(i)
	}
	encoded := encodeRecord(Delta{Blob: blob}, RecordFlagReliable)

	f := NewFragmenter(32)
	fragments := f.Split(encoded)
	require.Greater(t, len(fragments), 1)

	d := NewDefragmenter(128, int64(5e9), nil)

	// feed out of order: reverse
	var reconstructed []byte
	var ok bool
	for i := len(fragments) - 1; i >= 0; i-- {
		frag := fragments[i]
		reconstructed, ok = d.RegisterFragment(frag.Header, frag.Payload, 0)
		if ok {
			break
		}
	}
	require.True(t, ok)
	assert.Equal(t, encoded, reconstructed)

	decoded, err := OpenEnvelope(reconstructed)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, Delta{Blob: blob}, decoded[0].Body)
}

func TestDefragmenterRejectsCRCMismatch(t *testing.T) {
	blob := []byte("hello world this is a longer payload for fragmentation")
	encoded := encodeRecord(Delta{Blob: blob}, RecordFlagReliable)

	f := NewFragmenter(24)
	fragments := f.Split(encoded)
	require.Greater(t, len(fragments), 1)

	d := NewDefragmenter(128, int64(5e9), nil)

	corrupted := append([]byte{}, fragments[0].Payload...)
	if len(corrupted) > 0 {
		corrupted[0] ^= 0xFF
	}

	var ok bool
	for _, frag := range fragments {
		payload := frag.Payload
		if frag.Header.Index == fragments[0].Header.Index {
			payload = corrupted
		}
		_, ok = d.RegisterFragment(frag.Header, payload, 0)
	}
	assert.False(t, ok, "reassembly must fail when a fragment's bytes are corrupted")
}

func TestDefragmenterExpiresByTTL(t *testing.T) {
	blob := make([]byte, 50)
	encoded := encodeRecord(Delta{Blob: blob}, RecordFlagReliable)
	f := NewFragmenter(20)
	fragments := f.Split(encoded)
	require.Greater(t, len(fragments), 1)

	d := NewDefragmenter(128, int64(1e9), nil) // 1s TTL
	_, ok := d.RegisterFragment(fragments[0].Header, fragments[0].Payload, 0)
	require.False(t, ok)

	// second fragment arrives after the TTL has elapsed relative to bucket creation
	_, ok = d.RegisterFragment(fragments[1].Header, fragments[1].Payload, int64(2e9))
	assert.False(t, ok)
	assert.Len(t, d.buckets, 1, "expired bucket should have been purged and a fresh one started")
}

func TestDefragmenterEvictsOldestBucketAtCapacity(t *testing.T) {
	d := NewDefragmenter(1, int64(5e9), nil)

	f := NewFragmenter(20)
	first := f.Split(encodeRecord(Delta{Blob: make([]byte, 50)}, RecordFlagReliable))
	second := f.Split(encodeRecord(Delta{Blob: make([]byte, 51)}, RecordFlagReliable))

	d.RegisterFragment(first[0].Header, first[0].Payload, 0)
	require.Len(t, d.buckets, 1)

	d.RegisterFragment(second[0].Header, second[0].Payload, 0)
	assert.Len(t, d.buckets, 1, "capacity=1 must evict the first bucket")
	_, stillPresent := d.buckets[first[0].Header.MsgID]
	assert.False(t, stillPresent)
}
