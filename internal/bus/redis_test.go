package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reeftide/abyssal-server/internal/wire"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	svc, err := NewService(mr.Addr(), "")
	require.NoError(t, err)

	return svc, mr
}

func TestNewServicePingsSuccessfully(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer svc.Close()

	assert.NotNil(t, svc.Client())
	assert.NoError(t, svc.Ping(context.Background()))
}

func TestPublishRoomEventDeliversToSubscriber(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer svc.Close()

	ctx := context.Background()
	received := make(chan []byte, 1)
	svc.Subscribe(ctx, "room-1", func(frame []byte) {
		received <- frame
	})
	time.Sleep(50 * time.Millisecond) // let the subscription establish

	payload, err := wire.EncodePing(wire.Ping{ClientTime: 99})
	require.NoError(t, err)
	require.NoError(t, svc.PublishRoomEvent(ctx, "room-1", wire.TagPing, payload))

	select {
	case frame := <-received:
		tag, value, err := wire.Decode(frame)
		require.NoError(t, err)
		assert.Equal(t, wire.TagPing, tag)
		assert.Equal(t, wire.Ping{ClientTime: 99}, value)
	case <-time.After(time.Second):
		t.Fatal("did not receive published frame")
	}
}

func TestPublishRoomEventOnNilServiceIsNoop(t *testing.T) {
	var svc *Service
	assert.NoError(t, svc.PublishRoomEvent(context.Background(), "room-1", wire.TagPing, nil))
}
