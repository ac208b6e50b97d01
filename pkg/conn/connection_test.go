package conn

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ventosilenzioso/reliudp/internal/telemetry"
	"github.com/ventosilenzioso/reliudp/pkg/protocol"
	"github.com/ventosilenzioso/reliudp/pkg/transport"
)

func newLoopbackPair(t *testing.T, cfg Config) (*Connection, *Connection) {
	t.Helper()
	connA, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { connA.Close() })
	connB, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { connB.Close() })

	addrA := connA.LocalAddr().(*net.UDPAddr)
	addrB := connB.LocalAddr().(*net.UDPAddr)

	epA := transport.NewEndpoint(connA, transport.NewConfig(), telemetry.NoOp(), zap.NewNop())
	epB := transport.NewEndpoint(connB, transport.NewConfig(), telemetry.NoOp(), zap.NewNop())

	a := New(epA, addrB, cfg, telemetry.NoOp(), zap.NewNop())
	b := New(epB, addrA, cfg, telemetry.NoOp(), zap.NewNop())
	return a, b
}

func tickBoth(a, b *Connection, now time.Time, n int) {
	for i := 0; i < n; i++ {
		a.Tick(now, 5*time.Millisecond, 5*time.Millisecond, 64, 64)
		b.Tick(now, 5*time.Millisecond, 5*time.Millisecond, 64, 64)
		time.Sleep(time.Millisecond)
	}
}

func TestUnreliableEchoPing(t *testing.T) {
	a, b := newLoopbackPair(t, DefaultConfig())
	now := time.Now()

	require.NoError(t, a.SendRecord(protocol.Ping{ID: 1, Ms: 100}))
	tickBoth(a, b, now, 4)

	records := b.RecvAll()
	require.Len(t, records, 1)
	assert.Equal(t, protocol.Ping{ID: 1, Ms: 100}, records[0])
}

func TestReliableDeliveryWithAck(t *testing.T) {
	a, b := newLoopbackPair(t, DefaultConfig())
	a.rid = 15
	now := time.Now()

	require.NoError(t, a.SendRecord(protocol.Delta{Blob: []byte("test payload")}))
	tickBoth(a, b, now, 6)

	records := b.RecvAll()
	require.Len(t, records, 1)
	assert.Equal(t, protocol.Delta{Blob: []byte("test payload")}, records[0])

	assert.True(t, b.ackMask.Initialized())
	assert.Equal(t, uint16(15), b.ackMask.BaseSeq())
	assert.Equal(t, 0, a.resend.Len(), "A's resend queue should be empty once B's ack arrives")
}

func TestEnvelopeBatchingPreservesOrder(t *testing.T) {
	a, b := newLoopbackPair(t, DefaultConfig())
	now := time.Now()

	require.NoError(t, a.SendRecord(protocol.Ping{ID: 1, Ms: 1}))
	require.NoError(t, a.SendRecord(protocol.Delta{Blob: []byte("first")}))
	require.NoError(t, a.SendRecord(protocol.Ping{ID: 2, Ms: 2}))
	require.NoError(t, a.SendRecord(protocol.Delta{Blob: []byte("second")}))

	tickBoth(a, b, now, 4)

	records := b.RecvAll()
	require.Len(t, records, 4)
	assert.Equal(t, protocol.Ping{ID: 1, Ms: 1}, records[0])
	assert.Equal(t, protocol.Delta{Blob: []byte("first")}, records[1])
	assert.Equal(t, protocol.Ping{ID: 2, Ms: 2}, records[2])
	assert.Equal(t, protocol.Delta{Blob: []byte("second")}, records[3])
}

func TestFragmentedDeliveryReassembles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MTU = 64
	a, b := newLoopbackPair(t, cfg)
	now := time.Now()

	blob := make([]byte, 500)
	for i := range blob {
		blob[i] = byte(i)
	}
	require.NoError(t, a.SendRecord(protocol.Snapshot{Blob: blob}))
	tickBoth(a, b, now, 10)

	records := b.RecvAll()
	require.Len(t, records, 1)
	assert.Equal(t, protocol.Snapshot{Blob: blob}, records[0])
}

func TestRetransmitAbandonsAfterMaxRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resend.MaxRetries = 2
	cfg.Resend.MinRTO = 10 * time.Millisecond
	cfg.Resend.MaxRTO = 50 * time.Millisecond
	cfg.Resend.Backoff = 1.0

	// A sends to a loopback port nobody listens on, so ACKs never arrive.
	connA, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer connA.Close()
	unreachable := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}

	epA := transport.NewEndpoint(connA, transport.NewConfig(), telemetry.NoOp(), zap.NewNop())
	a := New(epA, unreachable, cfg, telemetry.NoOp(), zap.NewNop())

	now := time.Now()
	require.NoError(t, a.SendRecord(protocol.Delta{Blob: []byte("lost")}))
	a.Tick(now, 5*time.Millisecond, 5*time.Millisecond, 64, 64)
	require.Equal(t, 1, a.resend.Len())

	elapsed := now
	for i := 0; i < 10; i++ {
		elapsed = elapsed.Add(60 * time.Millisecond)
		a.Tick(elapsed, 5*time.Millisecond, 5*time.Millisecond, 64, 64)
		if a.resend.Len() == 0 {
			break
		}
	}
	assert.Equal(t, 0, a.resend.Len(), "entry must be abandoned after max_retries")
}
