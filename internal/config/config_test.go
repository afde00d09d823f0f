package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, defaultRoomCapacity, cfg.RoomCapacity)
	assert.Equal(t, defaultTickRateHz, cfg.TickRateHz)
	assert.False(t, cfg.RedisEnabled)
}

func TestLoadParsesFlags(t *testing.T) {
	cfg, err := Load([]string{"--room-capacity=64", "--tick-rate=30"})
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.RoomCapacity)
	assert.Equal(t, 30, cfg.TickRateHz)
}

func TestValidateRejectsOutOfRangeCapacity(t *testing.T) {
	cfg := &Config{RoomCapacity: 0, TickRateHz: 20, LogLevel: "info"}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "room-capacity")
}

func TestValidateRejectsOutOfRangeTickRate(t *testing.T) {
	cfg := &Config{RoomCapacity: 10, TickRateHz: 1000, LogLevel: "info"}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tick-rate")
}

func TestValidateAccumulatesMultipleErrors(t *testing.T) {
	cfg := &Config{RoomCapacity: 0, TickRateHz: 0, LogLevel: "verbose"}
	err := cfg.validate()
	require.Error(t, err)
	msg := err.Error()
	assert.True(t, strings.Contains(msg, "room-capacity"))
	assert.True(t, strings.Contains(msg, "tick-rate"))
	assert.True(t, strings.Contains(msg, "log-level"))
}

func TestValidateRequiresJoinTokenSecretWhenRequired(t *testing.T) {
	cfg := &Config{RoomCapacity: 10, TickRateHz: 20, LogLevel: "info", RequireJoinToken: true}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOIN_TOKEN_SECRET")
}

func TestValidateRejectsShortJoinTokenSecret(t *testing.T) {
	cfg := &Config{RoomCapacity: 10, TickRateHz: 20, LogLevel: "info", RequireJoinToken: true, JoinTokenSecret: "short"}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestValidateRejectsMalformedRedisAddr(t *testing.T) {
	cfg := &Config{RoomCapacity: 10, TickRateHz: 20, LogLevel: "info", RedisEnabled: true, RedisAddr: "not-a-host-port"}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis-addr")
}

func TestRedactSecretHidesMostOfLongSecret(t *testing.T) {
	assert.Equal(t, "", redactSecret(""))
	assert.Equal(t, "***", redactSecret("short"))
	assert.Equal(t, "12345678***", redactSecret("123456789012345678901234567890123456"))
}

func TestIsValidHostPort(t *testing.T) {
	assert.True(t, isValidHostPort("localhost:6379"))
	assert.False(t, isValidHostPort("localhost"))
	assert.False(t, isValidHostPort("localhost:notaport"))
	assert.False(t, isValidHostPort(":6379"))
}
