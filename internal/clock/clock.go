// Package clock implements the client-side clock and latency estimator:
// it turns a stream of PING/PONG round trips into a smoothed server-time
// offset and a render-time delay bounded to a configurable window.
package clock

import (
	"sort"
	"sync"
)

const (
	defaultRenderDelayMillis = 100
	minRenderDelayMillis     = 50
	maxRenderDelayMillis     = 500
	sampleWindow             = 10
)

// sample is one resolved PING/PONG round trip.
type sample struct {
	offsetMillis int64 // serverTime - clientTime, corrected for half-RTT
	rttMillis    int64
}

// Clock estimates server time from a ring of recent round-trip samples,
// and renders remote entities a fixed delay behind estimated server time.
// Zero value is not usable; use New.
type Clock struct {
	mu          sync.Mutex
	samples     []sample
	next        int
	minRTT      int64
	haveSample  bool
	renderDelay int64
}

// New returns a Clock using the default 100ms render delay.
func New() *Clock {
	return NewWithRenderDelay(defaultRenderDelayMillis)
}

// NewWithRenderDelay returns a Clock using renderDelayMillis as its fixed
// interpolation delay, clamped to [50, 500]ms. The render delay is a
// client configuration constant: it is set once here and never mutated
// by observed latency.
func NewWithRenderDelay(renderDelayMillis int64) *Clock {
	if renderDelayMillis < minRenderDelayMillis {
		renderDelayMillis = minRenderDelayMillis
	}
	if renderDelayMillis > maxRenderDelayMillis {
		renderDelayMillis = maxRenderDelayMillis
	}
	return &Clock{
		samples:     make([]sample, 0, sampleWindow),
		renderDelay: renderDelayMillis,
	}
}

// OnPong records a resolved round trip: clientTime is the value echoed
// back from the PING this PONG answers, serverTime is the PONG's
// server-stamped time, and now is the local wall clock at receipt (all
// unix millis). Negative or zero RTT samples (clock skew, replayed
// packets) are discarded.
func (c *Clock) OnPong(clientTime, serverTime, now int64) {
	rtt := now - clientTime
	if rtt <= 0 {
		return
	}
	offset := serverTime - (clientTime + rtt/2)

	c.mu.Lock()
	defer c.mu.Unlock()
	s := sample{offsetMillis: offset, rttMillis: rtt}
	if len(c.samples) < sampleWindow {
		c.samples = append(c.samples, s)
	} else {
		c.samples[c.next] = s
		c.next = (c.next + 1) % sampleWindow
	}
	if !c.haveSample || rtt < c.minRTT {
		c.minRTT = rtt
	}
	c.haveSample = true
}

// medianOffset returns the median of the recorded offset samples. Caller
// holds c.mu and len(c.samples) > 0.
func (c *Clock) medianOffset() int64 {
	offsets := make([]int64, len(c.samples))
	for i, s := range c.samples {
		offsets[i] = s.offsetMillis
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets[len(offsets)/2]
}

// medianRTT returns the median of the recorded RTT samples. Caller holds
// c.mu and len(c.samples) > 0.
func (c *Clock) medianRTT() int64 {
	rtts := make([]int64, len(c.samples))
	for i, s := range c.samples {
		rtts[i] = s.rttMillis
	}
	sort.Slice(rtts, func(i, j int) bool { return rtts[i] < rtts[j] })
	return rtts[len(rtts)/2]
}

// RTT returns the median of the recorded round-trip samples, or 0 before
// any sample has arrived.
func (c *Clock) RTT() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.haveSample {
		return 0
	}
	return c.medianRTT()
}

// MinRTT returns the minimum round trip observed this session, or 0
// before any sample has arrived.
func (c *Clock) MinRTT() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.minRTT
}

// ServerTime converts a local wall-clock reading into an estimated
// server time. Before any sample has arrived it returns localNow
// unmodified (zero offset).
func (c *Clock) ServerTime(localNow int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.haveSample {
		return localNow
	}
	return localNow + c.medianOffset()
}

// RenderTime returns the time at which the client should render remote
// entities: the estimated server time, pulled back by the current render
// delay so the interpolation buffer always has two real samples to
// interpolate between.
func (c *Clock) RenderTime(localNow int64) int64 {
	return c.ServerTime(localNow) - c.RenderDelay()
}

// RenderDelay returns the current render-time delay in milliseconds.
func (c *Clock) RenderDelay() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderDelay
}
