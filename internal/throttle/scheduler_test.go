package throttle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reeftide/abyssal-server/internal/types"
)

func TestFirstCallAlwaysSends(t *testing.T) {
	s := New()
	assert.True(t, s.MaybeSend(0, types.Transform{}, 1))
}

func TestGatedUntilMinIntervalElapses(t *testing.T) {
	s := New()
	s.MaybeSend(0, types.Transform{Pos: types.Vec3{X: 0}}, 1)
	moved := types.Transform{Pos: types.Vec3{X: 10}}
	assert.False(t, s.MaybeSend(10, moved, 1)) // within min interval
	assert.True(t, s.MaybeSend(60, moved, 1))  // past min interval and moved
}

func TestUnchangedPoseNotResent(t *testing.T) {
	s := New()
	t0 := types.Transform{Pos: types.Vec3{X: 1, Y: 2, Z: 3}}
	s.MaybeSend(0, t0, 1)
	assert.False(t, s.MaybeSend(1000, t0, 1))
}

func TestTinyJitterBelowEpsilonNotResent(t *testing.T) {
	s := New()
	t0 := types.Transform{Pos: types.Vec3{X: 1}}
	s.MaybeSend(0, t0, 1)
	jitter := types.Transform{Pos: types.Vec3{X: 1.0001}}
	assert.False(t, s.MaybeSend(1000, jitter, 1))
}

func TestEachAxisCheckedIndependently(t *testing.T) {
	s := New()
	s.MaybeSend(0, types.Transform{}, 1)
	// Each axis moves by less than positionEpsilon (0.01); summed they
	// would exceed it, but per-axis none do, so this must not send.
	tiny := types.Transform{Pos: types.Vec3{X: 0.004, Y: 0.004, Z: 0.004}}
	assert.False(t, s.MaybeSend(1000, tiny, 1))
}

func TestRotationOnlyChangeStillSends(t *testing.T) {
	s := New()
	s.MaybeSend(0, types.Transform{}, 1)
	rotated := types.Transform{Rot: types.Vec3{Y: 1.0}}
	assert.True(t, s.MaybeSend(1000, rotated, 1))
}

func TestScaleOnlyChangeStillSends(t *testing.T) {
	s := New()
	s.MaybeSend(0, types.Transform{VisualScale: 1}, 1)
	scaled := types.Transform{VisualScale: 1.5}
	assert.True(t, s.MaybeSend(1000, scaled, 1))
}

func TestVolumeOnlyChangeStillSends(t *testing.T) {
	s := New()
	s.MaybeSend(0, types.Transform{}, 1)
	assert.True(t, s.MaybeSend(1000, types.Transform{}, 2))
}

func TestTinyVolumeChangeBelowEpsilonNotResent(t *testing.T) {
	s := New()
	s.MaybeSend(0, types.Transform{}, 1)
	assert.False(t, s.MaybeSend(1000, types.Transform{}, 1.05))
}
