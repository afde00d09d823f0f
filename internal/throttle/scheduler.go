// Package throttle implements the client-side send scheduler: it gates
// outbound POSITION updates to a minimum interval and only sends when the
// entity has actually moved enough to matter.
package throttle

import "github.com/reeftide/abyssal-server/internal/types"

const (
	// minSendIntervalMillis floors how often POSITION may be sent
	// regardless of movement, bounding upstream bandwidth per client.
	minSendIntervalMillis = 50 // 20Hz ceiling

	// positionEpsilon and rotationEpsilon are the minimum per-axis deltas
	// that count as "moved"; below these the pose is considered unchanged
	// and is not worth a wire message. positionEpsilon also gates scale,
	// per spec.
	positionEpsilon = 0.01
	rotationEpsilon = 0.001

	// volumeEpsilon gates WorldVolume changes (e.g. from eating an NPC)
	// separately, since a volume-only change carries no pos/rot/scale delta.
	volumeEpsilon = 0.1
)

// Scheduler decides, for one locally-controlled entity, whether a fresh
// pose is worth sending right now.
type Scheduler struct {
	lastSentAt     int64
	lastSentPos    types.Vec3
	lastSentRot    types.Vec3
	lastSentScale  float64
	lastSentVolume float64
	haveSent       bool
	minInterval    int64
}

// New returns a Scheduler using the default 50ms minimum send interval.
func New() *Scheduler {
	return &Scheduler{minInterval: minSendIntervalMillis}
}

// MaybeSend reports whether the given transform and worldVolume, observed
// at now (unix millis), should be sent to the server. It never returns
// true more often than once per minInterval, and otherwise only when the
// pose or volume changed by more than the movement epsilon. The first
// call always sends.
func (s *Scheduler) MaybeSend(now int64, t types.Transform, worldVolume float64) bool {
	if !s.haveSent {
		s.record(now, t, worldVolume)
		return true
	}
	if now-s.lastSentAt < s.minInterval {
		return false
	}
	if !s.moved(t, worldVolume) {
		return false
	}
	s.record(now, t, worldVolume)
	return true
}

func (s *Scheduler) record(now int64, t types.Transform, worldVolume float64) {
	s.lastSentAt = now
	s.lastSentPos = t.Pos
	s.lastSentRot = t.Rot
	s.lastSentScale = t.VisualScale
	s.lastSentVolume = worldVolume
	s.haveSent = true
}

func (s *Scheduler) moved(t types.Transform, worldVolume float64) bool {
	return deltaAxis(s.lastSentPos, t.Pos, positionEpsilon) ||
		deltaAxis(s.lastSentRot, t.Rot, rotationEpsilon) ||
		absf(s.lastSentScale-t.VisualScale) > positionEpsilon ||
		absf(s.lastSentVolume-worldVolume) > volumeEpsilon
}

// deltaAxis reports whether any single axis of a and c differs by more
// than epsilon, checked independently rather than summed.
func deltaAxis(a, c types.Vec3, epsilon float64) bool {
	return absf(a.X-c.X) > epsilon || absf(a.Y-c.Y) > epsilon || absf(a.Z-c.Z) > epsilon
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
