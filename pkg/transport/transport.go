// Package transport implements a non-blocking UDP endpoint: a socket
// wrapped by two ring.Buffer queues (RX/TX) drained under a per-tick dual
// budget (wall-clock time and message count), so a single cooperative tick
// can never block the whole connection on socket I/O.
package transport

import (
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/ventosilenzioso/reliudp/internal/telemetry"
	"github.com/ventosilenzioso/reliudp/pkg/ring"
)

// Datagram pairs a raw UDP payload with the remote address it came from
// (RX) or is bound for (TX).
type Datagram struct {
	Addr    *net.UDPAddr
	Payload []byte
}

// Config configures an Endpoint's ring buffers and read scratch size. Use
// NewConfig for the defaults, then apply Option values.
type Config struct {
	RxCapacity   int
	TxCapacity   int
	RxDropPolicy ring.DropPolicy
	TxDropPolicy ring.DropPolicy
	MaxDatagram  int
}

// Option mutates a Config.
type Option func(*Config)

func WithRxCapacity(n int) Option      { return func(c *Config) { c.RxCapacity = n } }
func WithTxCapacity(n int) Option      { return func(c *Config) { c.TxCapacity = n } }
func WithMaxDatagramSize(n int) Option { return func(c *Config) { c.MaxDatagram = n } }

// NewConfig returns the default Config: a 1024-entry RX ring that drops the
// oldest datagram under overrun (freshness over completeness), a
// 1024-entry TX ring that refuses new pushes under overrun (preserve send
// ordering), and a 2048-byte read scratch buffer.
func NewConfig(opts ...Option) Config {
	c := Config{
		RxCapacity:   1024,
		TxCapacity:   1024,
		RxDropPolicy: ring.DropOldest,
		TxDropPolicy: ring.DropNewest,
		MaxDatagram:  2048,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Endpoint is a non-blocking UDP socket fronted by RX/TX ring buffers.
type Endpoint struct {
	conn    *net.UDPConn
	rx      *ring.Buffer[Datagram]
	tx      *ring.Buffer[Datagram]
	scratch []byte
	metrics *telemetry.Sink
	log     *zap.Logger
}

// NewEndpoint wraps conn. metrics and log may be nil-safe zero values
// (telemetry.NoOp(), zap.NewNop()).
func NewEndpoint(conn *net.UDPConn, cfg Config, metrics *telemetry.Sink, log *zap.Logger) *Endpoint {
	return &Endpoint{
		conn:    conn,
		rx:      ring.New[Datagram]("endpoint.rx", cfg.RxCapacity, cfg.RxDropPolicy, metrics),
		tx:      ring.New[Datagram]("endpoint.tx", cfg.TxCapacity, cfg.TxDropPolicy, metrics),
		scratch: make([]byte, cfg.MaxDatagram),
		metrics: metrics,
		log:     log,
	}
}

// LocalAddr returns the bound local address.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// Close closes the underlying socket.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// Enqueue offers a datagram for send on the next Tick. Returns false if the
// TX ring is full and the drop policy refused it.
func (e *Endpoint) Enqueue(d Datagram) bool {
	return e.tx.Push(d)
}

// Dequeue pops the oldest received datagram, if any.
func (e *Endpoint) Dequeue() (Datagram, bool) {
	return e.rx.Pop()
}

// Tick drains socket reads into the RX ring and TX ring entries onto the
// socket, each bounded by its own wall-clock budget and message count cap
// so that a burst in one direction cannot starve the other or stall the
// caller's tick loop.
func (e *Endpoint) Tick(rxBudget, txBudget time.Duration, maxRx, maxTx int) (rxCount, txCount int) {
	rxCount = e.drainRx(rxBudget, maxRx)
	txCount = e.drainTx(txBudget, maxTx)
	return
}

func (e *Endpoint) drainRx(budget time.Duration, max int) int {
	start := time.Now()
	n := 0
	for n < max && time.Since(start) < budget {
		_ = e.conn.SetReadDeadline(time.Now().Add(time.Microsecond))
		read, addr, err := e.conn.ReadFromUDP(e.scratch)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			e.log.Debug("udp read error", zap.Error(err))
			break
		}
		payload := make([]byte, read)
		copy(payload, e.scratch[:read])
		e.rx.Push(Datagram{Addr: addr, Payload: payload})
		n++
	}
	e.metrics.DrainTime("rx", time.Since(start).Seconds())
	return n
}

func (e *Endpoint) drainTx(budget time.Duration, max int) int {
	start := time.Now()
	n := 0
	for n < max && time.Since(start) < budget {
		d, ok := e.tx.Pop()
		if !ok {
			break
		}
		if _, err := e.conn.WriteToUDP(d.Payload, d.Addr); err != nil {
			e.log.Debug("udp write error", zap.Error(err))
		}
		n++
	}
	e.metrics.DrainTime("tx", time.Since(start).Seconds())
	return n
}
