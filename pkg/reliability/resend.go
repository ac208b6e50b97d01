package reliability

import (
	"math"
	"time"
)

// Pending is the stored state for one unacked reliable packet, keyed by
// rid in ResendQueue.pending.
type Pending struct {
	Payload []byte
	SentAt  time.Time
	Retries int
}

// ResendConfig configures a ResendQueue.
type ResendConfig struct {
	MaxRetries int
	Backoff    float64
	MinRTO     time.Duration
	MaxRTO     time.Duration
}

func DefaultResendConfig() ResendConfig {
	return ResendConfig{
		MaxRetries: 8,
		Backoff:    1.5,
		MinRTO:     defaultMinRTO,
		MaxRTO:     defaultMaxRTO,
	}
}

// ResendQueue retains reliable packet payloads until acked or abandoned,
// and drives the RtoEstimator from first-attempt ACKs only (Karn's rule).
type ResendQueue struct {
	cfg     ResendConfig
	rto     *RtoEstimator
	pending map[uint16]*Pending
}

func NewResendQueue(cfg ResendConfig) *ResendQueue {
	return &ResendQueue{
		cfg:     cfg,
		rto:     NewRtoEstimator(),
		pending: make(map[uint16]*Pending),
	}
}

// Rto exposes the underlying estimator for diagnostics (jitter/stddev).
func (q *ResendQueue) Rto() *RtoEstimator { return q.rto }

// Len reports the number of currently-unacked entries.
func (q *ResendQueue) Len() int { return len(q.pending) }

// OnSend records a freshly-sent reliable packet.
func (q *ResendQueue) OnSend(rid uint16, payload []byte, now time.Time) {
	q.pending[rid] = &Pending{Payload: payload, SentAt: now, Retries: 0}
}

// OnAcked removes every acked rid; if a removed entry was never
// retransmitted, its RTT is sampled into the RTO estimator (Karn's rule).
func (q *ResendQueue) OnAcked(rids []uint16, now time.Time) {
	for _, rid := range rids {
		p, ok := q.pending[rid]
		if !ok {
			continue
		}
		delete(q.pending, rid)
		if p.Retries == 0 {
			q.rto.NoteSample(now.Sub(p.SentAt))
		}
	}
}

func (q *ResendQueue) effectiveRTO(retries int) time.Duration {
	base := q.rto.RTO()
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	scaled := float64(base) * math.Pow(q.cfg.Backoff, float64(retries))
	return clampDuration(time.Duration(scaled), q.cfg.MinRTO, q.cfg.MaxRTO)
}

// DueEntry pairs a rid with its Pending for DueTimeouts' results.
type DueEntry struct {
	Rid     uint16
	Pending *Pending
}

// DueTimeouts returns every pending entry whose age has reached its
// effective RTO. Order is unspecified (map iteration).
func (q *ResendQueue) DueTimeouts(now time.Time) []DueEntry {
	var due []DueEntry
	for rid, p := range q.pending {
		if now.Sub(p.SentAt) >= q.effectiveRTO(p.Retries) {
			due = append(due, DueEntry{Rid: rid, Pending: p})
		}
	}
	return due
}

// OnRetransmit returns the payload to re-send for rid, bumping its retry
// counter, or nil if there is no such entry or it has exceeded
// max_retries (in which case it is dropped permanently).
func (q *ResendQueue) OnRetransmit(rid uint16, now time.Time) []byte {
	p, ok := q.pending[rid]
	if !ok {
		return nil
	}
	if p.Retries >= q.cfg.MaxRetries {
		delete(q.pending, rid)
		return nil
	}
	p.Retries++
	p.SentAt = now
	return p.Payload
}
