package reliability

import (
	"math"
	"time"
)

// RFC 6298 gain constants.
const (
	alpha = 1.0 / 8.0
	beta  = 1.0 / 4.0
)

// jitterSmoothing is RFC 3550 §6.4.1's fixed divisor.
const jitterSmoothing = 16.0

const (
	defaultMinRTO           = 100 * time.Millisecond
	defaultMaxRTO           = 2 * time.Second
	defaultClockGranularity = time.Second / 60
)

// RtoEstimator is an RFC6298-style SRTT/RTTVAR estimator. NoteSample must
// only be called for RTT samples from non-retransmitted packets (Karn's
// rule) — the resend queue enforces this, not the estimator itself.
type RtoEstimator struct {
	srtt        time.Duration
	rttvar      time.Duration
	rto         time.Duration
	granularity time.Duration
	minRTO      time.Duration
	maxRTO      time.Duration
	initialized bool

	// Diagnostics companions: jitter and variance track the same RTT
	// samples NoteSample feeds into srtt/rttvar.
	jitter  jitterEstimator
	welford onlineStdDev
}

// NewRtoEstimator constructs an estimator with default bounds (100ms-2s)
// and a 1/60s clock granularity matching a conventional tick rate.
func NewRtoEstimator() *RtoEstimator {
	return &RtoEstimator{
		rto:         200 * time.Millisecond,
		granularity: defaultClockGranularity,
		minRTO:      defaultMinRTO,
		maxRTO:      defaultMaxRTO,
	}
}

// RTO returns the current retransmission timeout.
func (e *RtoEstimator) RTO() time.Duration { return e.rto }

// Initialized reports whether any sample has been observed.
func (e *RtoEstimator) Initialized() bool { return e.initialized }

// NoteSample feeds one RTT sample into the estimator.
func (e *RtoEstimator) NoteSample(rtt time.Duration) {
	if rtt < 0 {
		rtt = 0
	}
	if !e.initialized {
		e.srtt = rtt
		e.rttvar = rtt / 2
		e.initialized = true
	} else {
		diff := e.srtt - rtt
		if diff < 0 {
			diff = -diff
		}
		e.rttvar = durScale(e.rttvar, 1-beta) + durScale(diff, beta)
		e.srtt = durScale(e.srtt, 1-alpha) + durScale(rtt, alpha)
	}
	floor := e.granularity
	if bound := 4 * e.rttvar; bound > floor {
		floor = bound
	}
	e.rto = clampDuration(e.srtt+floor, e.minRTO, e.maxRTO)

	ms := float64(rtt) / float64(time.Millisecond)
	e.jitter.noteSample(ms)
	e.welford.noteSample(ms)
}

// JitterMs returns the RFC 3550 §6.4.1 jitter estimate in milliseconds.
func (e *RtoEstimator) JitterMs() float64 { return e.jitter.jMs }

// StdDevMs returns the Welford online standard deviation in milliseconds.
func (e *RtoEstimator) StdDevMs() float64 { return e.welford.stddev() }

func durScale(d time.Duration, f float64) time.Duration {
	return time.Duration(float64(d) * f)
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// jitterEstimator implements RFC 3550 §6.4.1: J += (|R - last_R| - J)/16.
type jitterEstimator struct {
	jMs     float64
	lastMs  float64
	hasLast bool
}

func (j *jitterEstimator) noteSample(ms float64) {
	if !j.hasLast {
		j.lastMs = ms
		j.hasLast = true
		return
	}
	d := math.Abs(ms - j.lastMs)
	j.jMs += (d - j.jMs) / jitterSmoothing
	j.lastMs = ms
}

// onlineStdDev is Welford's single-pass variance/stddev algorithm.
type onlineStdDev struct {
	n    int
	mean float64
	m2   float64
}

func (o *onlineStdDev) noteSample(x float64) {
	o.n++
	delta := x - o.mean
	o.mean += delta / float64(o.n)
	delta2 := x - o.mean
	o.m2 += delta * delta2
}

func (o *onlineStdDev) variance() float64 {
	if o.n < 2 {
		return 0
	}
	return o.m2 / float64(o.n-1)
}

func (o *onlineStdDev) stddev() float64 {
	return math.Sqrt(o.variance())
}
