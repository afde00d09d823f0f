package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowJoinPermitsUpToTheLimit(t *testing.T) {
	l, err := New(nil, "2-M", "100-M")
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, l.AllowJoin(ctx, "1.2.3.4"))
	assert.True(t, l.AllowJoin(ctx, "1.2.3.4"))
	assert.False(t, l.AllowJoin(ctx, "1.2.3.4"))
}

func TestAllowJoinTracksEachIPIndependently(t *testing.T) {
	l, err := New(nil, "1-M", "100-M")
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, l.AllowJoin(ctx, "1.2.3.4"))
	assert.True(t, l.AllowJoin(ctx, "5.6.7.8"))
}

func TestAllowMessagePermitsUpToTheLimit(t *testing.T) {
	l, err := New(nil, "100-M", "2-M")
	require.NoError(t, err)

	ctx := context.Background()
	connKey := "conn-1"
	assert.True(t, l.AllowMessage(ctx, connKey))
	assert.True(t, l.AllowMessage(ctx, connKey))
	assert.False(t, l.AllowMessage(ctx, connKey))
}

func TestNewRejectsMalformedRate(t *testing.T) {
	_, err := New(nil, "not-a-rate", "100-M")
	assert.Error(t, err)
}
