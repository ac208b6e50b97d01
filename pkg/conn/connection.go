// Package conn implements the reliable connection orchestrator: a
// single-threaded, cooperative per-tick state machine that glues the
// endpoint, envelope builder/opener, fragmenter/defragmenter, ack mask,
// and resend queue together, plus an extension hook point for optional
// behavior layered on top (ping/pong, handshake) without touching the
// core tick loop.
package conn

import (
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/ventosilenzioso/reliudp/internal/telemetry"
	"github.com/ventosilenzioso/reliudp/pkg/protocol"
	"github.com/ventosilenzioso/reliudp/pkg/reliability"
	"github.com/ventosilenzioso/reliudp/pkg/ring"
	"github.com/ventosilenzioso/reliudp/pkg/transport"
	"github.com/ventosilenzioso/reliudp/pkg/wire"
)

// Capability is the one-way back-reference an Extension receives at Init:
// an opaque view of the connection exposing only what an extension needs
// to send records and describe the transport, never the full Connection.
type Capability interface {
	SendRecord(body protocol.Body) error
	MTU() int
	Address() *net.UDPAddr
}

// Extension is the optional plug-in hook set a Connection drives once per
// tick and once per incoming record.
type Extension interface {
	Init(cap Capability)
	OnTick()
	OnRecord(body protocol.Body) bool
}

// Config configures a Connection's sub-components.
type Config struct {
	MTU              int
	AckBits          int
	Resend           reliability.ResendConfig
	DefragCapacity   int
	DefragTTL        time.Duration
	RecvFIFOCapacity int
}

func DefaultConfig() Config {
	return Config{
		MTU:              1200,
		AckBits:          64,
		Resend:           reliability.DefaultResendConfig(),
		DefragCapacity:   128,
		DefragTTL:        5 * time.Second,
		RecvFIFOCapacity: 256,
	}
}

type pendingFragment struct {
	frag     protocol.Fragment
	reliable bool
}

// Connection is the reliable-connection orchestrator. It owns one set of
// protocol components per remote peer; a single Connection talks to
// exactly one peer.
type Connection struct {
	endpoint *transport.Endpoint
	remote   *net.UDPAddr
	mtu      int

	builder      *protocol.Builder
	fragmenter   *protocol.Fragmenter
	defragmenter *protocol.Defragmenter
	ackMask      *reliability.AckMask
	resend       *reliability.ResendQueue

	seq uint16
	rid uint16

	ackDirty bool

	pendingFragments []pendingFragment
	recv             *ring.Buffer[protocol.Body]
	extensions       []Extension

	metrics *telemetry.Sink
	log     *zap.Logger
}

// New constructs a Connection bound to endpoint, talking to remote.
func New(endpoint *transport.Endpoint, remote *net.UDPAddr, cfg Config, metrics *telemetry.Sink, log *zap.Logger) *Connection {
	c := &Connection{
		endpoint:     endpoint,
		remote:       remote,
		mtu:          cfg.MTU,
		builder:      protocol.NewBuilder(cfg.MTU - protocol.PacketHeaderSize),
		fragmenter:   protocol.NewFragmenter(cfg.MTU),
		defragmenter: protocol.NewDefragmenter(cfg.DefragCapacity, cfg.DefragTTL.Nanoseconds(), fragmentDropSink{metrics}),
		ackMask:      reliability.NewAckMask(cfg.AckBits),
		resend:       reliability.NewResendQueue(cfg.Resend),
		recv:         ring.New[protocol.Body]("conn.recv", cfg.RecvFIFOCapacity, ring.DropOldest, metrics),
		metrics:      metrics,
		log:          log,
	}
	return c
}

type fragmentDropSink struct{ s *telemetry.Sink }

func (f fragmentDropSink) FragmentDropped(reason string) { f.s.FragmentDropped(reason) }

// Rto exposes the resend queue's RTO/jitter estimator, e.g. for an
// extension that wants to drive pings off the same clock.
func (c *Connection) Rto() *reliability.RtoEstimator { return c.resend.Rto() }

// AddExtension registers ext and calls its Init hook once, immediately,
// with this connection's capability view.
func (c *Connection) AddExtension(ext Extension) {
	ext.Init(c)
	c.extensions = append(c.extensions, ext)
}

// MTU implements Capability.
func (c *Connection) MTU() int { return c.mtu }

// Address implements Capability.
func (c *Connection) Address() *net.UDPAddr { return c.remote }

// SendRecord appends body to the envelope builder, flagged reliable
// according to its own default. On RecordTooLarge it is routed through the
// fragmenter instead; on any other encode failure the record is dropped,
// counted as a diagnostic, and the error is returned to the caller.
func (c *Connection) SendRecord(body protocol.Body) error {
	c.metrics.RecordQueued()
	flags := uint8(0)
	if body.ReliableByDefault() {
		flags |= protocol.RecordFlagReliable
	}
	err := c.builder.Add(body, flags)
	if err == nil {
		return nil
	}
	var tooLarge *protocol.RecordTooLarge
	if errors.As(err, &tooLarge) {
		c.metrics.RecordTooLarge()
		for _, frag := range c.fragmenter.Split(tooLarge.Encoded) {
			c.pendingFragments = append(c.pendingFragments, pendingFragment{frag: frag, reliable: body.ReliableByDefault()})
		}
		return nil
	}
	c.metrics.RecordDropped("encode_error")
	return fmt.Errorf("conn: send_record: %w", err)
}

// RecvRecord pops the oldest received record, if any.
func (c *Connection) RecvRecord() (protocol.Body, bool) {
	return c.recv.Pop()
}

// RecvAll drains every currently-queued received record.
func (c *Connection) RecvAll() []protocol.Body {
	var out []protocol.Body
	for {
		body, ok := c.recv.Pop()
		if !ok {
			break
		}
		out = append(out, body)
	}
	return out
}

// Close closes the underlying endpoint's socket.
func (c *Connection) Close() error {
	return c.endpoint.Close()
}

func (c *Connection) nextSeq() uint16 {
	s := c.seq
	c.seq++
	return s
}

func (c *Connection) nextRid() uint16 {
	r := c.rid
	c.rid++
	return r
}

// Tick runs exactly one cooperative step, in a fixed phase order: I/O
// drain, RX parse, ACK emission, extension ticks, retransmit sweep, TX
// pack.
func (c *Connection) Tick(now time.Time, rxBudget, txBudget time.Duration, maxRx, maxTx int) {
	c.endpoint.Tick(rxBudget, txBudget, maxRx, maxTx)
	c.processIncoming(now)
	c.sendPendingAcks()
	c.tickExtensions()
	c.processRetransmits(now)
	c.processOutgoing(now)
}

func (c *Connection) processIncoming(now time.Time) {
	for {
		d, ok := c.endpoint.Dequeue()
		if !ok {
			break
		}
		c.metrics.PacketOffered()
		c.parsePacket(d.Payload, now)
	}
}

func (c *Connection) parsePacket(raw []byte, now time.Time) {
	r := wire.NewReader(raw)
	header, err := protocol.DecodePacketHeader(r)
	if err != nil {
		c.metrics.PacketDropped("bad_header")
		return
	}
	payload := raw[protocol.PacketHeaderSize:]

	if header.Reliable() {
		c.ackMask.NoteRecv(header.Rid)
		c.ackDirty = true
	}

	if header.Fragment() {
		c.parseFragment(payload, now)
		return
	}
	c.parseRecords(payload, now)
}

func (c *Connection) parseFragment(payload []byte, now time.Time) {
	fr := wire.NewReader(payload)
	fh, err := protocol.DecodeFragmentHeader(fr)
	if err != nil {
		c.metrics.FragmentDropped("bad_header")
		return
	}
	rest, err := fr.Raw(fr.Remaining())
	if err != nil {
		c.metrics.FragmentDropped("bad_header")
		return
	}
	reconstructed, ok := c.defragmenter.RegisterFragment(fh, rest, now.UnixNano())
	if !ok {
		return
	}
	c.parseRecords(reconstructed, now)
}

func (c *Connection) parseRecords(payload []byte, now time.Time) {
	records, err := protocol.OpenEnvelope(payload)
	if err != nil {
		c.metrics.PacketDropped("bad_envelope")
		return
	}
	for _, rec := range records {
		c.dispatchRecord(rec.Body, now)
	}
}

func (c *Connection) dispatchRecord(body protocol.Body, now time.Time) {
	for _, ext := range c.extensions {
		if ext.OnRecord(body) {
			return
		}
	}
	if ack, ok := body.(protocol.Ack); ok {
		c.metrics.AckReceived()
		c.resend.OnAcked(reliability.ExpandAck(ack), now)
		return
	}
	c.recv.Push(body)
}

func (c *Connection) sendPendingAcks() {
	if !c.ackDirty {
		return
	}
	ack := c.ackMask.ToAckRecord(8)
	c.ackDirty = false
	c.metrics.AckSent()
	_ = c.SendRecord(ack)
}

func (c *Connection) tickExtensions() {
	for _, ext := range c.extensions {
		ext.OnTick()
	}
}

func (c *Connection) processRetransmits(now time.Time) {
	for _, due := range c.resend.DueTimeouts(now) {
		payload := c.resend.OnRetransmit(due.Rid, now)
		if payload == nil {
			continue
		}
		c.metrics.Retransmitting()
		c.endpoint.Enqueue(transport.Datagram{Addr: c.remote, Payload: payload})
	}
}

func (c *Connection) processOutgoing(now time.Time) {
	envelopes, _ := c.builder.Finish()
	for _, env := range envelopes {
		c.packAndSend(env.Payload, env.Reliable, false, now)
	}

	fragments := c.pendingFragments
	c.pendingFragments = nil
	for _, pf := range fragments {
		c.packAndSend(protocol.EncodeFragment(pf.frag), pf.reliable, true, now)
	}
}

func (c *Connection) packAndSend(payload []byte, reliable, fragment bool, now time.Time) {
	var flags uint8
	var rid uint16
	if reliable {
		flags |= protocol.FlagReliable
		rid = c.nextRid()
	}
	if fragment {
		flags |= protocol.FlagFragment
	}
	header := protocol.PacketHeader{Version: protocol.Version, Flags: flags, Seq: c.nextSeq(), Rid: rid}

	w := wire.NewWriter(protocol.PacketHeaderSize + len(payload))
	header.Encode(w)
	w.Raw(payload)
	framed := w.Bytes()

	c.metrics.PacketPacked()
	c.endpoint.Enqueue(transport.Datagram{Addr: c.remote, Payload: framed})
	if reliable {
		c.resend.OnSend(rid, framed, now)
	}
}
