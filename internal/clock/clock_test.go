package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewClockDefaultsRenderDelay(t *testing.T) {
	c := New()
	assert.Equal(t, int64(defaultRenderDelayMillis), c.RenderDelay())
}

func TestServerTimeUnmodifiedBeforeFirstSample(t *testing.T) {
	c := New()
	assert.Equal(t, int64(5000), c.ServerTime(5000))
}

func TestOnPongEstimatesOffset(t *testing.T) {
	c := New()
	// client sent at 1000, server answered at 1100, client received at 1040
	// (40ms RTT, server runs 80ms ahead of half-RTT-corrected client time).
	c.OnPong(1000, 1100, 1040)
	got := c.ServerTime(1040)
	assert.InDelta(t, 1120, got, 1)
}

func TestOnPongDiscardsNonPositiveRTT(t *testing.T) {
	c := New()
	c.OnPong(1000, 1100, 1000) // rtt == 0
	assert.Equal(t, int64(2000), c.ServerTime(2000))
}

func TestNewWithRenderDelayClampsToWindow(t *testing.T) {
	assert.Equal(t, int64(minRenderDelayMillis), NewWithRenderDelay(10).RenderDelay())
	assert.Equal(t, int64(maxRenderDelayMillis), NewWithRenderDelay(5000).RenderDelay())
	assert.Equal(t, int64(200), NewWithRenderDelay(200).RenderDelay())
}

func TestRenderDelayIsNotMutatedByObservedLatency(t *testing.T) {
	c := New()
	before := c.RenderDelay()
	// A burst of very slow round trips must never change the configured
	// render delay; it's a client constant, not a derived quantity.
	for i := 0; i < sampleWindow; i++ {
		base := int64(i * 10000)
		c.OnPong(base, base+2000, base+2000)
	}
	assert.Equal(t, before, c.RenderDelay())
}

func TestRTTTracksMedianOfSamples(t *testing.T) {
	c := New()
	c.OnPong(0, 1, 20)  // rtt 20
	c.OnPong(0, 1, 40)  // rtt 40
	c.OnPong(0, 1, 60)  // rtt 60
	assert.Equal(t, int64(40), c.RTT())
}

func TestMinRTTTracksMinimumOverSession(t *testing.T) {
	c := New()
	c.OnPong(0, 1, 60)
	c.OnPong(0, 1, 20)
	c.OnPong(0, 1, 40)
	assert.Equal(t, int64(20), c.MinRTT())
}

func TestMinRTTZeroBeforeFirstSample(t *testing.T) {
	c := New()
	assert.Equal(t, int64(0), c.MinRTT())
}

func TestRenderTimeTrailsServerTimeByDelay(t *testing.T) {
	c := New()
	c.OnPong(1000, 1100, 1040)
	st := c.ServerTime(1040)
	rt := c.RenderTime(1040)
	assert.Equal(t, st-c.RenderDelay(), rt)
}
