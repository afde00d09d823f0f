package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reeftide/abyssal-server/internal/types"
)

func TestSampleMissingEntity(t *testing.T) {
	b := NewBuffer()
	_, ok := b.Sample(1, 1000)
	assert.False(t, ok)
}

func TestSampleSingleSnapshotReturnsItUnmodified(t *testing.T) {
	b := NewBuffer()
	b.Push(1, types.Transform{Pos: types.Vec3{X: 5}, ServerTime: 100})
	got, ok := b.Sample(1, 500)
	require.True(t, ok)
	assert.Equal(t, 5.0, got.Pos.X)
}

func TestSampleInterpolatesBetweenBrackets(t *testing.T) {
	b := NewBuffer()
	b.Push(1, types.Transform{Pos: types.Vec3{X: 0}, ServerTime: 1000})
	b.Push(1, types.Transform{Pos: types.Vec3{X: 10}, ServerTime: 2000})

	got, ok := b.Sample(1, 1500)
	require.True(t, ok)
	assert.InDelta(t, 5.0, got.Pos.X, 0.001)
}

func TestSampleNeverExtrapolatesPastNewest(t *testing.T) {
	b := NewBuffer()
	b.Push(1, types.Transform{Pos: types.Vec3{X: 0}, ServerTime: 1000})
	b.Push(1, types.Transform{Pos: types.Vec3{X: 10}, ServerTime: 2000})

	got, ok := b.Sample(1, 5000)
	require.True(t, ok)
	assert.Equal(t, 10.0, got.Pos.X)
}

func TestSampleClampsToOldestWhenRenderTimeIsEarlier(t *testing.T) {
	b := NewBuffer()
	b.Push(1, types.Transform{Pos: types.Vec3{X: 0}, ServerTime: 1000})
	b.Push(1, types.Transform{Pos: types.Vec3{X: 10}, ServerTime: 2000})

	got, ok := b.Sample(1, 0)
	require.True(t, ok)
	assert.Equal(t, 0.0, got.Pos.X)
}

func TestSampleTakesShortestAngularPath(t *testing.T) {
	b := NewBuffer()
	b.Push(1, types.Transform{Rot: types.Vec3{Y: 3.0}, ServerTime: 1000})
	b.Push(1, types.Transform{Rot: types.Vec3{Y: -3.0}, ServerTime: 2000})

	got, ok := b.Sample(1, 1500)
	require.True(t, ok)
	// crossing the +/-pi seam should move through ~pi, not back through 0.
	assert.Greater(t, got.Rot.Y, 3.0-0.2)
}

func TestPushDropsOutOfOrderSnapshots(t *testing.T) {
	b := NewBuffer()
	b.Push(1, types.Transform{Pos: types.Vec3{X: 10}, ServerTime: 2000})
	b.Push(1, types.Transform{Pos: types.Vec3{X: 999}, ServerTime: 1000}) // stale, dropped

	got, ok := b.Sample(1, 2000)
	require.True(t, ok)
	assert.Equal(t, 10.0, got.Pos.X)
}

func TestPushEvictsOldestBeyondCap(t *testing.T) {
	b := NewBuffer()
	for i := 0; i < maxSamples+10; i++ {
		b.Push(1, types.Transform{Pos: types.Vec3{X: float64(i)}, ServerTime: int64(i * 10)})
	}
	assert.Len(t, b.entities[1], maxSamples)
}

func TestForgetRemovesHistory(t *testing.T) {
	b := NewBuffer()
	b.Push(1, types.Transform{ServerTime: 1000})
	b.Forget(1)
	_, ok := b.Sample(1, 1000)
	assert.False(t, ok)
}
