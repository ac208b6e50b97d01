package reliability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRtoEstimatorSingleSampleWithinBounds(t *testing.T) {
	e := NewRtoEstimator()
	e.NoteSample(50 * time.Millisecond)
	assert.GreaterOrEqual(t, e.RTO(), e.minRTO)
	assert.LessOrEqual(t, e.RTO(), e.maxRTO)
}

func TestRtoEstimatorConvergesOnIdenticalSamples(t *testing.T) {
	e := NewRtoEstimator()
	for i := 0; i < 200; i++ {
		e.NoteSample(80 * time.Millisecond)
	}
	assert.InDelta(t, 0, e.rttvar.Seconds(), 0.0005)
	expected := clampDuration(e.srtt+e.granularity, e.minRTO, e.maxRTO)
	assert.Equal(t, expected, e.RTO())
}

func TestRtoEstimatorClampsToMinAndMax(t *testing.T) {
	e := NewRtoEstimator()
	e.NoteSample(1 * time.Nanosecond)
	assert.GreaterOrEqual(t, e.RTO(), e.minRTO)

	e2 := NewRtoEstimator()
	e2.NoteSample(10 * time.Second)
	assert.LessOrEqual(t, e2.RTO(), e2.maxRTO)
}

func TestJitterAndStdDevAccumulate(t *testing.T) {
	e := NewRtoEstimator()
	e.NoteSample(50 * time.Millisecond)
	e.NoteSample(60 * time.Millisecond)
	e.NoteSample(40 * time.Millisecond)
	assert.Greater(t, e.JitterMs(), 0.0)
	assert.Greater(t, e.StdDevMs(), 0.0)
}
