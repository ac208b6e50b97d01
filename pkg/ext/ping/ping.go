// Package ping implements the ping/pong extension: the single place
// Ping/Pong records are sent, answered, and sampled into RTT.
package ping

import (
	"time"

	"github.com/ventosilenzioso/reliudp/internal/telemetry"
	"github.com/ventosilenzioso/reliudp/pkg/conn"
	"github.com/ventosilenzioso/reliudp/pkg/health"
	"github.com/ventosilenzioso/reliudp/pkg/protocol"
	"github.com/ventosilenzioso/reliudp/pkg/reliability"
)

// Extension drives periodic pings and answers peer pings, sampling RTT
// into the shared RtoEstimator so ping RTT samples and ACK-driven RTT
// samples converge on one shared RTO.
type Extension struct {
	mgr     *health.PingManager
	cap     conn.Capability
	epoch   time.Time
	metrics *telemetry.Sink
}

// New constructs a ping Extension backed by rto, typically the same
// estimator driving the connection's resend queue (Connection.Rto()).
func New(cfg health.PingConfig, rto *reliability.RtoEstimator, metrics *telemetry.Sink) *Extension {
	return &Extension{
		mgr:     health.NewPingManager(cfg, rto),
		metrics: metrics,
	}
}

func (e *Extension) Init(cap conn.Capability) {
	e.cap = cap
	e.epoch = time.Now()
}

func (e *Extension) nowMs() uint32 {
	return uint32(time.Since(e.epoch).Milliseconds())
}

// OnTick sends a fresh ping when due and reports pings pruned for staleness.
func (e *Extension) OnTick() {
	now := e.nowMs()
	if e.mgr.IsDue(now) {
		p := e.mgr.MakePing(now)
		_ = e.cap.SendRecord(p)
		e.metrics.PingSent()
	}
	for range e.mgr.Prune(now) {
		e.metrics.PingLost()
	}
}

// OnRecord answers incoming Pings with a Pong and feeds incoming Pongs to
// the RTT sampler; consumes both, leaves everything else for the next
// extension or the connection's receive FIFO.
func (e *Extension) OnRecord(body protocol.Body) bool {
	switch v := body.(type) {
	case protocol.Ping:
		pong := e.mgr.OnRecvPing(v)
		_ = e.cap.SendRecord(pong)
		return true
	case protocol.Pong:
		e.mgr.OnRecvPong(v, e.nowMs())
		return true
	default:
		return false
	}
}
