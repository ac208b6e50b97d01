package reliability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResendQueueOnAckedRemovesAndSamplesRTT(t *testing.T) {
	q := NewResendQueue(DefaultResendConfig())
	start := time.Now()
	q.OnSend(1, []byte("payload"), start)
	require.Equal(t, 1, q.Len())

	q.OnAcked([]uint16{1}, start.Add(50*time.Millisecond))
	assert.Equal(t, 0, q.Len())
	assert.True(t, q.Rto().Initialized())
}

func TestResendQueueOnAckedUnknownRidIsNoop(t *testing.T) {
	q := NewResendQueue(DefaultResendConfig())
	q.OnAcked([]uint16{42}, time.Now())
	assert.Equal(t, 0, q.Len())
}

func TestKarnsRuleSkipsRetransmittedSamples(t *testing.T) {
	q := NewResendQueue(DefaultResendConfig())
	start := time.Now()
	q.OnSend(1, []byte("payload"), start)

	payload := q.OnRetransmit(1, start.Add(300*time.Millisecond))
	require.NotNil(t, payload)

	q.OnAcked([]uint16{1}, start.Add(350*time.Millisecond))
	assert.False(t, q.Rto().Initialized(), "a retransmitted packet's ack must not feed the RTO estimator")
}

func TestResendQueueDueTimeoutsAndEscalation(t *testing.T) {
	cfg := ResendConfig{MaxRetries: 3, Backoff: 1.5, MinRTO: 100 * time.Millisecond, MaxRTO: 2 * time.Second}
	q := NewResendQueue(cfg)
	start := time.Now()
	q.OnSend(7, []byte("x"), start)

	due := q.DueTimeouts(start)
	assert.Empty(t, due, "should not be due immediately")

	due = q.DueTimeouts(start.Add(300 * time.Millisecond))
	require.Len(t, due, 1)
	assert.Equal(t, uint16(7), due[0].Rid)

	now := start.Add(300 * time.Millisecond)
	var lastInterval time.Duration
	for i := 0; i < 4; i++ {
		payload := q.OnRetransmit(7, now)
		if i < cfg.MaxRetries {
			require.NotNilf(t, payload, "retry %d should still return the payload", i)
			interval := q.effectiveRTO(i)
			assert.GreaterOrEqual(t, interval, lastInterval)
			assert.GreaterOrEqual(t, interval, cfg.MinRTO)
			assert.LessOrEqual(t, interval, cfg.MaxRTO)
			lastInterval = interval
		} else {
			assert.Nil(t, payload, "after max_retries the entry must be abandoned")
		}
		now = now.Add(interval(q, i))
	}
	assert.Equal(t, 0, q.Len(), "abandoned entry must be removed")
}

func interval(q *ResendQueue, retries int) time.Duration {
	return q.effectiveRTO(retries)
}
