package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reeftide/abyssal-server/internal/types"
	"github.com/reeftide/abyssal-server/internal/wire"
)

// fakeSender is a no-op room.Sender used to seat a participant for stats
// assertions; it doesn't need to observe anything the room sends.
type fakeSender struct{ id types.ParticipantID }

func (f *fakeSender) ParticipantID() types.ParticipantID            { return f.id }
func (f *fakeSender) SendPriority(frame []byte)                     {}
func (f *fakeSender) SendCoalescable(tag wire.MessageTag, b []byte) {}
func (f *fakeSender) Close()                                        {}

func newTestHub(grace time.Duration) *Hub {
	return New(Config{RoomCapacity: 4, TickRateHz: 20, CleanupGracePeriod: grace})
}

func TestAssignCreatesRoomOnFirstCall(t *testing.T) {
	h := newTestHub(time.Minute)
	defer shutdownHub(t, h)

	r1 := h.Assign(types.RoomID("alpha"))
	r2 := h.Assign(types.RoomID("alpha"))
	assert.Same(t, r1, r2)
	assert.Equal(t, 1, h.RoomCount())
}

func TestAssignCreatesDistinctRoomsForDistinctIDs(t *testing.T) {
	h := newTestHub(time.Minute)
	defer shutdownHub(t, h)

	h.Assign(types.RoomID("alpha"))
	h.Assign(types.RoomID("beta"))
	assert.Equal(t, 2, h.RoomCount())
}

func TestEmptyRoomEvictedAfterGracePeriod(t *testing.T) {
	h := newTestHub(20 * time.Millisecond)
	defer shutdownHub(t, h)

	roomID := types.RoomID("ghost")
	h.Assign(roomID)
	h.removeRoom(roomID)

	require.Eventually(t, func() bool { return h.RoomCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestReassignCancelsPendingCleanup(t *testing.T) {
	h := newTestHub(30 * time.Millisecond)
	defer shutdownHub(t, h)

	roomID := types.RoomID("reclaimed")
	h.Assign(roomID)
	h.removeRoom(roomID)

	// Reconnect before the grace period elapses.
	h.Assign(roomID)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, h.RoomCount())
}

func TestStatsReportsActiveRooms(t *testing.T) {
	h := newTestHub(time.Minute)
	defer shutdownHub(t, h)

	h.Assign(types.RoomID("stats-room"))
	stats := h.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "stats-room", stats[0].RoomID)
	assert.Equal(t, 0, stats[0].Participants)
	assert.Empty(t, stats[0].Connections)
}

func TestStatsReportsPerConnectionRTTAndMessageCount(t *testing.T) {
	h := newTestHub(time.Minute)
	defer shutdownHub(t, h)

	r := h.Assign(types.RoomID("conn-stats-room"))
	welcome, err := r.Join(context.Background(), &fakeSender{}, wire.JoinGame{DisplayName: "A"})
	require.NoError(t, err)
	require.NoError(t, r.Ping(welcome.ParticipantID, time.Now().UnixMilli()))

	stats := h.Stats()
	require.Len(t, stats, 1)
	require.Len(t, stats[0].Connections, 1)
	conn := stats[0].Connections[0]
	assert.Equal(t, welcome.ParticipantID, conn.ParticipantID)
	assert.GreaterOrEqual(t, conn.LastRTTMillis, int64(0))
	assert.Equal(t, uint64(1), conn.MessageCount)
}

func TestShutdownClearsAllRooms(t *testing.T) {
	h := newTestHub(time.Minute)
	h.Assign(types.RoomID("one"))
	h.Assign(types.RoomID("two"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))
	assert.Equal(t, 0, h.RoomCount())
}

func shutdownHub(t *testing.T, h *Hub) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))
}
