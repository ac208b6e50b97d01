// Package health implements ping/pong RTT measurement: a periodic ping
// with an outstanding cap, feeding RTT samples into an RTO estimator plus
// jitter/variance diagnostics. Its millisecond clock's wrap-safe
// comparisons delegate to pkg/wire.SeqLessU32/SeqGreaterU32.
package health

import (
	"time"

	"github.com/ventosilenzioso/reliudp/pkg/protocol"
	"github.com/ventosilenzioso/reliudp/pkg/reliability"
	"github.com/ventosilenzioso/reliudp/pkg/wire"
)

func msToDuration(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// PingConfig configures a PingManager.
type PingConfig struct {
	IntervalMs     uint32
	MaxOutstanding int
}

func DefaultPingConfig() PingConfig {
	return PingConfig{IntervalMs: 1000, MaxOutstanding: 16}
}

type outstandingPing struct {
	id uint16
	ms uint32
}

// PingManager holds the outstanding-ping table and the shared RTO/jitter
// estimator that on_recv_pong samples into.
type PingManager struct {
	cfg         PingConfig
	nextID      uint16
	nextDueMs   uint32
	outstanding map[uint16]outstandingPing
	rto         *reliability.RtoEstimator
}

func NewPingManager(cfg PingConfig, rto *reliability.RtoEstimator) *PingManager {
	return &PingManager{
		cfg:         cfg,
		outstanding: make(map[uint16]outstandingPing),
		rto:         rto,
	}
}

// Rto exposes the estimator this manager samples into.
func (m *PingManager) Rto() *reliability.RtoEstimator { return m.rto }

// IsDue reports whether a new ping should be sent: the wrap-safe u32 clock
// has reached next_due_ms and the outstanding table has room.
func (m *PingManager) IsDue(nowMs uint32) bool {
	due := !wire.SeqLessU32(nowMs, m.nextDueMs)
	return due && len(m.outstanding) < m.cfg.MaxOutstanding
}

// MakePing allocates the next ping id, records it as outstanding, and
// advances the due clock.
func (m *PingManager) MakePing(nowMs uint32) protocol.Ping {
	id := m.nextID
	m.nextID++
	m.outstanding[id] = outstandingPing{id: id, ms: nowMs}
	m.nextDueMs += m.cfg.IntervalMs
	return protocol.Ping{ID: id, Ms: nowMs}
}

// OnRecvPing answers a peer's ping with the matching Pong.
func (m *PingManager) OnRecvPing(p protocol.Ping) protocol.Pong {
	return protocol.Pong{ID: p.ID, Ms: p.Ms}
}

// OnRecvPong pops the matching outstanding entry and samples RTT into the
// RTO estimator (which carries jitter/stddev alongside SRTT/RTTVAR). A
// pong with no matching outstanding ping is ignored.
func (m *PingManager) OnRecvPong(p protocol.Pong, nowMs uint32) {
	sent, ok := m.outstanding[p.ID]
	if !ok {
		return
	}
	delete(m.outstanding, p.ID)
	rtt := nowMs - sent.ms
	m.rto.NoteSample(msToDuration(rtt))
}

// Prune returns every outstanding ping older than the configured interval
// so the caller may observe loss, removing them from the outstanding set.
func (m *PingManager) Prune(nowMs uint32) []protocol.Ping {
	var lost []protocol.Ping
	for id, p := range m.outstanding {
		stale := p.ms + m.cfg.IntervalMs
		if wire.SeqLessU32(stale, nowMs) {
			lost = append(lost, protocol.Ping{ID: id, Ms: p.ms})
			delete(m.outstanding, id)
		}
	}
	return lost
}
