// Package interp buffers remote entities' recent transforms and samples
// them at a caller-chosen render time, interpolating between the two
// bracketing snapshots and never extrapolating past the newest one.
package interp

import (
	"math"

	"github.com/reeftide/abyssal-server/internal/types"
)

// maxSamples bounds each entity's ring so a stalled entity can't grow its
// buffer without limit.
const maxSamples = 60

// snapshot is one timestamped transform.
type snapshot struct {
	serverTime int64
	transform  types.Transform
}

// Buffer holds the recent snapshot history for every tracked entity.
type Buffer struct {
	entities map[uint32][]snapshot
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{entities: make(map[uint32][]snapshot)}
}

// Push appends a new snapshot for id, evicting the oldest sample once the
// ring exceeds maxSamples. Out-of-order snapshots (serverTime not after
// the last recorded one) are dropped.
func (b *Buffer) Push(id uint32, t types.Transform) {
	hist := b.entities[id]
	if len(hist) > 0 && t.ServerTime <= hist[len(hist)-1].serverTime {
		return
	}
	hist = append(hist, snapshot{serverTime: t.ServerTime, transform: t})
	if len(hist) > maxSamples {
		hist = hist[len(hist)-maxSamples:]
	}
	b.entities[id] = hist
}

// Forget drops all history for id, e.g. on PLAYER_LEAVE.
func (b *Buffer) Forget(id uint32) {
	delete(b.entities, id)
}

// Sample returns the interpolated transform for id at renderTime. It
// brackets renderTime between the two snapshots straddling it and linearly
// interpolates position and visual scale, taking the shortest angular path
// for rotation. If renderTime is at or before the oldest snapshot, the
// oldest is returned. If renderTime is at or after the newest snapshot, the
// newest is returned unmodified — the buffer never extrapolates forward.
// Sample reports false if id has no history.
func (b *Buffer) Sample(id uint32, renderTime int64) (types.Transform, bool) {
	hist := b.entities[id]
	if len(hist) == 0 {
		return types.Transform{}, false
	}
	if len(hist) == 1 || renderTime <= hist[0].serverTime {
		return hist[0].transform, true
	}
	last := hist[len(hist)-1]
	if renderTime >= last.serverTime {
		return last.transform, true
	}

	// binary search for the bracket [lo, hi] such that
	// hist[lo].serverTime <= renderTime <= hist[hi].serverTime
	lo, hi := 0, len(hist)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if hist[mid].serverTime <= renderTime {
			lo = mid
		} else {
			hi = mid
		}
	}

	a, c := hist[lo], hist[hi]
	span := c.serverTime - a.serverTime
	if span <= 0 {
		return a.transform, true
	}
	frac := float64(renderTime-a.serverTime) / float64(span)

	return types.Transform{
		Pos:         lerpVec3(a.transform.Pos, c.transform.Pos, frac),
		Rot:         lerpRotation(a.transform.Rot, c.transform.Rot, frac),
		VisualScale: lerp(a.transform.VisualScale, c.transform.VisualScale, frac),
		ServerTime:  renderTime,
	}, true
}

func lerp(a, c, frac float64) float64 {
	return a + (c-a)*frac
}

func lerpVec3(a, c types.Vec3, frac float64) types.Vec3 {
	return types.Vec3{
		X: lerp(a.X, c.X, frac),
		Y: lerp(a.Y, c.Y, frac),
		Z: lerp(a.Z, c.Z, frac),
	}
}

// lerpRotation interpolates each Euler component along its shortest
// angular path so a rotation crossing the +/-pi boundary doesn't spin the
// long way around.
func lerpRotation(a, c types.Vec3, frac float64) types.Vec3 {
	return types.Vec3{
		X: lerpAngle(a.X, c.X, frac),
		Y: lerpAngle(a.Y, c.Y, frac),
		Z: lerpAngle(a.Z, c.Z, frac),
	}
}

const tau = 2 * math.Pi

func lerpAngle(a, c, frac float64) float64 {
	delta := math.Mod(c-a+math.Pi, tau)
	if delta < 0 {
		delta += tau
	}
	delta -= math.Pi
	return a + delta*frac
}
