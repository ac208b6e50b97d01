package protocol

import (
	"hash/crc32"

	"github.com/ventosilenzioso/reliudp/pkg/wire"
)

// Fragment is one emitted slice of an over-sized record's encoded bytes,
// ready to be wrapped in a packet with the FRAGMENT flag set.
type Fragment struct {
	Header  FragmentHeader
	Payload []byte
}

// Fragmenter splits payloads too large for one envelope. msgID is
// fragmenter-local and wraps in u16 space like every other counter in
// this protocol.
type Fragmenter struct {
	mtu    int
	nextID uint16
}

// NewFragmenter constructs a Fragmenter for the given packet MTU.
func NewFragmenter(mtu int) *Fragmenter {
	return &Fragmenter{mtu: mtu}
}

func (f *Fragmenter) fragmentSize() int {
	return f.mtu - FragmentHeaderSize
}

// Split slices payload into ceil(len/fragment_size) fragments, each
// prefixed (by the caller, via Header) with (msg_id, index, count,
// total_len, msg_crc32).
func (f *Fragmenter) Split(payload []byte) []Fragment {
	size := f.fragmentSize()
	total := len(payload)
	count := (total + size - 1) / size
	if count == 0 {
		count = 1
	}
	sum := crc32.ChecksumIEEE(payload)
	msgID := f.nextID
	f.nextID++

	out := make([]Fragment, 0, count)
	for i := 0; i < count; i++ {
		start := i * size
		end := start + size
		if end > total {
			end = total
		}
		out = append(out, Fragment{
			Header: FragmentHeader{
				MsgID:    msgID,
				Index:    uint8(i),
				Count:    uint8(count),
				TotalLen: uint16(total),
				MsgCRC32: sum,
			},
			Payload: payload[start:end],
		})
	}
	return out
}

// bucket is a transient reassembly buffer for one fragmented message.
type bucket struct {
	msgID     uint16
	count     uint8
	totalLen  uint16
	crc       uint32
	slices    [][]byte
	received  int
	createdAt int64 // monotonic nanoseconds, supplied by the caller
}

// Defragmenter reassembles fragmented messages by msg_id, bounded by
// capacity (oldest-first eviction) and per-bucket TTL. Each incoming
// fragment expires stale buckets first, then inserts its own bucket if
// new, then evicts the oldest buckets down to capacity — in that order, so
// aged-out buckets free their space before any live bucket is evicted.
// The newest bucket is evicted only when capacity is zero.
type Defragmenter struct {
	capacity int
	ttlNanos int64
	buckets  map[uint16]*bucket
	order    []uint16 // insertion order, oldest first, for capacity eviction
	metrics  dropSink
}

// dropSink is the minimal surface Defragmenter needs from telemetry,
// declared locally so this package does not import internal/telemetry
// (kept as a leaf package; the connection wires metrics in).
type dropSink interface {
	FragmentDropped(reason string)
}

type noopDropSink struct{}

func (noopDropSink) FragmentDropped(string) {}

// NewDefragmenter constructs a Defragmenter. Pass nil for metrics to
// discard fragment-drop observability.
func NewDefragmenter(capacity int, ttlNanos int64, metrics dropSink) *Defragmenter {
	if metrics == nil {
		metrics = noopDropSink{}
	}
	return &Defragmenter{
		capacity: capacity,
		ttlNanos: ttlNanos,
		buckets:  make(map[uint16]*bucket),
		metrics:  metrics,
	}
}

// RegisterFragment ingests one fragment at time nowNanos (a monotonic
// clock reading owned by the caller). Returns the reconstructed payload
// once every fragment of its message has arrived and its CRC32 checks out.
func (d *Defragmenter) RegisterFragment(h FragmentHeader, payload []byte, nowNanos int64) ([]byte, bool) {
	d.expire(nowNanos)

	b, ok := d.buckets[h.MsgID]
	if !ok {
		b = &bucket{
			msgID:     h.MsgID,
			count:     h.Count,
			totalLen:  h.TotalLen,
			crc:       h.MsgCRC32,
			slices:    make([][]byte, h.Count),
			createdAt: nowNanos,
		}
		d.buckets[h.MsgID] = b
		d.order = append(d.order, h.MsgID)
		d.evictToCapacity()
	}

	if h.MsgCRC32 != b.crc {
		d.metrics.FragmentDropped("crc_mismatch")
		delete(d.buckets, h.MsgID)
		return nil, false
	}

	if int(h.Index) < len(b.slices) && b.slices[h.Index] == nil {
		b.slices[h.Index] = payload
		b.received++
	}

	if b.received < int(b.count) {
		return nil, false
	}

	reconstructed := make([]byte, 0, b.totalLen)
	for _, s := range b.slices {
		reconstructed = append(reconstructed, s...)
	}
	delete(d.buckets, h.MsgID)

	if crc32.ChecksumIEEE(reconstructed) != b.crc {
		d.metrics.FragmentDropped("crc_mismatch")
		return nil, false
	}
	return reconstructed, true
}

// expire purges every bucket older than the TTL, run before each
// RegisterFragment call.
func (d *Defragmenter) expire(nowNanos int64) {
	live := d.order[:0]
	for _, id := range d.order {
		b, ok := d.buckets[id]
		if !ok {
			continue
		}
		if nowNanos-b.createdAt > d.ttlNanos {
			delete(d.buckets, id)
			d.metrics.FragmentDropped("ttl_expired")
			continue
		}
		live = append(live, id)
	}
	d.order = live
}

// evictToCapacity drops the oldest bucket(s) by creation order until at
// most capacity remain, run immediately after a new bucket is inserted.
func (d *Defragmenter) evictToCapacity() {
	for len(d.order) > d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.buckets, oldest)
		d.metrics.FragmentDropped("bucket_evicted")
	}
}

// EncodeFragment serializes a fragment's header + payload for the wire.
func EncodeFragment(f Fragment) []byte {
	w := wire.NewWriter(FragmentHeaderSize + len(f.Payload))
	f.Header.Encode(w)
	w.Raw(f.Payload)
	return w.Bytes()
}
