// Package telemetry is the Prometheus-backed observability sink shared by
// every reliudp package: record queued/dropped/too-large, packet
// offered/dropped/packed, fragment dropped, retransmitting, ack
// sent/received, ping sent/lost, ring-buffer enqueue/dequeue outcomes, and
// drain times. A metrics registry cannot accidentally block a caller that
// forgot to drain it, unlike a pub/sub signal bus would.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RingOutcome identifies what happened to a ring buffer push/pop.
type RingOutcome string

const (
	RingEnqueueOK         RingOutcome = "enqueue_ok"
	RingEnqueueDropNewest RingOutcome = "enqueue_drop_newest"
	RingEnqueueDropOldest RingOutcome = "enqueue_drop_oldest"
	RingDequeueOK         RingOutcome = "dequeue_ok"
	RingDequeueEmpty      RingOutcome = "dequeue_empty"
)

// Sink is the metrics surface every reliudp package writes to. It is safe
// for concurrent use and every method is non-blocking.
type Sink struct {
	ringEvents     *prometheus.CounterVec
	drainSeconds   *prometheus.HistogramVec
	recordsQueued  prometheus.Counter
	recordsDropped *prometheus.CounterVec
	recordTooLarge prometheus.Counter
	packetsOffered prometheus.Counter
	packetsDropped *prometheus.CounterVec
	packetsPacked  prometheus.Counter
	fragmentsDrop  *prometheus.CounterVec
	retransmits    prometheus.Counter
	acksSent       prometheus.Counter
	acksReceived   prometheus.Counter
	pingsSent      prometheus.Counter
	pingsLost      prometheus.Counter
}

// NewSink registers a fresh set of metrics against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the global
// registry; pass prometheus.DefaultRegisterer in a long-running process.
func NewSink(reg prometheus.Registerer) *Sink {
	s := &Sink{
		ringEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reliudp",
			Subsystem: "ring",
			Name:      "events_total",
			Help:      "Ring buffer push/pop outcomes by buffer name and outcome.",
		}, []string{"buffer", "outcome"}),
		drainSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reliudp",
			Subsystem: "endpoint",
			Name:      "drain_seconds",
			Help:      "Wall-clock time spent draining a ring buffer direction per tick.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}, []string{"direction"}),
		recordsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reliudp", Subsystem: "record", Name: "queued_total",
			Help: "Records accepted by send_record.",
		}),
		recordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reliudp", Subsystem: "record", Name: "dropped_total",
			Help: "Records dropped, by reason.",
		}, []string{"reason"}),
		recordTooLarge: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reliudp", Subsystem: "record", Name: "too_large_total",
			Help: "Records that alone exceeded the envelope budget and were routed to the fragmenter.",
		}),
		packetsOffered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reliudp", Subsystem: "packet", Name: "offered_total",
			Help: "Datagrams offered to the packet parser.",
		}),
		packetsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reliudp", Subsystem: "packet", Name: "dropped_total",
			Help: "Datagrams dropped at parse time, by reason.",
		}, []string{"reason"}),
		packetsPacked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reliudp", Subsystem: "packet", Name: "packed_total",
			Help: "Packets assembled and handed to the endpoint for send.",
		}),
		fragmentsDrop: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reliudp", Subsystem: "fragment", Name: "dropped_total",
			Help: "Fragments dropped, by reason (bad_header, crc_mismatch, bucket_evicted, ttl_expired).",
		}, []string{"reason"}),
		retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reliudp", Subsystem: "resend", Name: "retransmits_total",
			Help: "Reliable packets retransmitted after RTO elapsed.",
		}),
		acksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reliudp", Subsystem: "ack", Name: "sent_total",
			Help: "Ack records emitted.",
		}),
		acksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reliudp", Subsystem: "ack", Name: "received_total",
			Help: "Ack records received and applied to the resend queue.",
		}),
		pingsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reliudp", Subsystem: "ping", Name: "sent_total",
			Help: "Pings sent by the ping extension.",
		}),
		pingsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reliudp", Subsystem: "ping", Name: "lost_total",
			Help: "Outstanding pings pruned without a matching pong.",
		}),
	}

	reg.MustRegister(
		s.ringEvents, s.drainSeconds, s.recordsQueued, s.recordsDropped,
		s.recordTooLarge, s.packetsOffered, s.packetsDropped, s.packetsPacked,
		s.fragmentsDrop, s.retransmits, s.acksSent, s.acksReceived,
		s.pingsSent, s.pingsLost,
	)
	return s
}

// NoOp returns a Sink whose methods discard everything, for callers (mainly
// tests) that don't care about metrics and don't want registry collisions.
func NoOp() *Sink {
	return NewSink(prometheus.NewRegistry())
}

func (s *Sink) RingEvent(buffer string, outcome RingOutcome) {
	if s == nil {
		return
	}
	s.ringEvents.WithLabelValues(buffer, string(outcome)).Inc()
}

func (s *Sink) DrainTime(direction string, seconds float64) {
	if s == nil {
		return
	}
	s.drainSeconds.WithLabelValues(direction).Observe(seconds)
}

func (s *Sink) RecordQueued() {
	if s == nil {
		return
	}
	s.recordsQueued.Inc()
}

func (s *Sink) RecordDropped(reason string) {
	if s == nil {
		return
	}
	s.recordsDropped.WithLabelValues(reason).Inc()
}

func (s *Sink) RecordTooLarge() {
	if s == nil {
		return
	}
	s.recordTooLarge.Inc()
}

func (s *Sink) PacketOffered() {
	if s == nil {
		return
	}
	s.packetsOffered.Inc()
}

func (s *Sink) PacketDropped(reason string) {
	if s == nil {
		return
	}
	s.packetsDropped.WithLabelValues(reason).Inc()
}

func (s *Sink) PacketPacked() {
	if s == nil {
		return
	}
	s.packetsPacked.Inc()
}

func (s *Sink) FragmentDropped(reason string) {
	if s == nil {
		return
	}
	s.fragmentsDrop.WithLabelValues(reason).Inc()
}

func (s *Sink) Retransmitting() {
	if s == nil {
		return
	}
	s.retransmits.Inc()
}

func (s *Sink) AckSent() {
	if s == nil {
		return
	}
	s.acksSent.Inc()
}

func (s *Sink) AckReceived() {
	if s == nil {
		return
	}
	s.acksReceived.Inc()
}

func (s *Sink) PingSent() {
	if s == nil {
		return
	}
	s.pingsSent.Inc()
}

func (s *Sink) PingLost() {
	if s == nil {
		return
	}
	s.pingsLost.Inc()
}
