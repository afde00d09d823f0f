package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampWorldVolumeEnforcesBounds(t *testing.T) {
	assert.Equal(t, 1.0, ClampWorldVolume(0))
	assert.Equal(t, 1.0, ClampWorldVolume(-5))
	assert.Equal(t, 1000.0, ClampWorldVolume(5000))
	assert.Equal(t, 42.5, ClampWorldVolume(42.5))
}

func TestClampWorldVolumeFoldsNaNToFloor(t *testing.T) {
	assert.Equal(t, 1.0, ClampWorldVolume(math.NaN()))
}

func TestValidAbilityKey(t *testing.T) {
	assert.True(t, ValidAbilityKey(AbilitySprinter))
	assert.True(t, ValidAbilityKey(AbilityStacker))
	assert.True(t, ValidAbilityKey(AbilityCamper))
	assert.True(t, ValidAbilityKey(AbilityAttacker))
	assert.False(t, ValidAbilityKey(AbilityKey("teleporter")))
}
