// Package hub is the process-wide dispatcher: it accepts upgraded
// WebSocket sockets, assigns them to a Room (creating one with a fresh
// WorldSeed if none exists), and evicts Rooms once their last
// participant has left, after a grace period that lets a dropped client
// reconnect into the same Room instead of losing it to a race with the
// cleanup timer.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reeftide/abyssal-server/internal/bus"
	"github.com/reeftide/abyssal-server/internal/logging"
	"github.com/reeftide/abyssal-server/internal/metrics"
	"github.com/reeftide/abyssal-server/internal/room"
	"github.com/reeftide/abyssal-server/internal/types"
)

// Hub owns every active Room in this process.
type Hub struct {
	mu                  sync.Mutex
	rooms               map[types.RoomID]*room.Room
	pendingRoomCleanups map[types.RoomID]*time.Timer

	roomCapacity       int
	tickRateHz         int
	cleanupGracePeriod time.Duration
	bus                bus.Publisher // nil disables cross-instance fan-out
}

// Config bundles the knobs New needs.
type Config struct {
	RoomCapacity       int
	TickRateHz         int
	CleanupGracePeriod time.Duration
	Bus                bus.Publisher
}

// New constructs an empty Hub. Rooms are created lazily by Assign.
func New(cfg Config) *Hub {
	if cfg.CleanupGracePeriod <= 0 {
		cfg.CleanupGracePeriod = 30 * time.Second
	}
	return &Hub{
		rooms:               make(map[types.RoomID]*room.Room),
		pendingRoomCleanups: make(map[types.RoomID]*time.Timer),
		roomCapacity:        cfg.RoomCapacity,
		tickRateHz:          cfg.TickRateHz,
		cleanupGracePeriod:  cfg.CleanupGracePeriod,
		bus:                 cfg.Bus,
	}
}

// Assign returns the Room for roomID, creating one with a freshly
// generated WorldSeed if it doesn't exist yet. A reconnect into an
// existing room cancels any pending eviction timer for it.
func (h *Hub) Assign(roomID types.RoomID) *room.Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[roomID]; ok {
		if timer, pending := h.pendingRoomCleanups[roomID]; pending {
			timer.Stop()
			delete(h.pendingRoomCleanups, roomID)
			logging.Info(context.Background(), "cancelled pending room cleanup due to reconnection",
				zap.String("room_id", string(roomID)))
		}
		return r
	}

	seed := newWorldSeed()
	r := room.New(roomID, room.Config{
		Capacity:   h.roomCapacity,
		TickRateHz: h.tickRateHz,
		WorldSeed:  seed,
		OnEmpty:    h.removeRoom,
		Bus:        h.bus,
	})
	h.rooms[roomID] = r
	metrics.ActiveRooms.Inc()
	logging.Info(context.Background(), "created room",
		zap.String("room_id", string(roomID)), zap.Uint32("world_seed", seed))
	return r
}

// NewRoomID mints an opaque room identifier for callers that don't have
// one yet (e.g. a client requesting a fresh room rather than joining an
// existing one by name).
func NewRoomID() types.RoomID {
	return types.RoomID(uuid.NewString())
}

// newWorldSeed is unrelated to the reconnect token's signing randomness;
// it only needs to differ across rooms, not be cryptographically secure.
func newWorldSeed() uint32 {
	return uuid.New().ID()
}

// removeRoom is called by a Room (via its OnEmpty hook) once its last
// participant leaves. Deletion is deferred by the grace period so a
// client that reconnects within that window rejoins the same Room
// instead of creating a new one with a different WorldSeed.
func (h *Hub) removeRoom(roomID types.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.pendingRoomCleanups[roomID]; ok {
		existing.Stop()
		delete(h.pendingRoomCleanups, roomID)
	}

	timer := time.AfterFunc(h.cleanupGracePeriod, func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		r, ok := h.rooms[roomID]
		if !ok {
			return
		}
		if r.ParticipantCount() > 0 {
			// Someone reconnected since the timer was scheduled; leave it.
			delete(h.pendingRoomCleanups, roomID)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Shutdown(ctx); err != nil {
			logging.Error(ctx, "room shutdown did not complete within grace window",
				zap.String("room_id", string(roomID)), zap.Error(err))
		}

		delete(h.rooms, roomID)
		delete(h.pendingRoomCleanups, roomID)
		metrics.ActiveRooms.Dec()
		logging.Info(ctx, "evicted empty room after grace period", zap.String("room_id", string(roomID)))
	})
	h.pendingRoomCleanups[roomID] = timer
}

// DestroyRoom forcibly evicts roomID without waiting for the grace
// period, used by administrative teardown paths.
func (h *Hub) DestroyRoom(ctx context.Context, roomID types.RoomID) error {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if ok {
		if timer, pending := h.pendingRoomCleanups[roomID]; pending {
			timer.Stop()
			delete(h.pendingRoomCleanups, roomID)
		}
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()

	if !ok {
		return nil
	}
	metrics.ActiveRooms.Dec()
	return r.Shutdown(ctx)
}

// ConnectionStats is one connection's observability snapshot within a
// room, as reported by /stats.
type ConnectionStats struct {
	ParticipantID types.ParticipantID `json:"participant_id"`
	LastRTTMillis int64               `json:"last_rtt_millis"`
	MessageCount  uint64              `json:"message_count"`
}

// RoomStats is one Room's snapshot as reported by /stats.
type RoomStats struct {
	RoomID       string            `json:"room_id"`
	Participants int               `json:"participants"`
	Connections  []ConnectionStats `json:"connections"`
}

// Stats snapshots every active room for the observability endpoint.
func (h *Hub) Stats() []RoomStats {
	h.mu.Lock()
	rooms := make([]*room.Room, 0, len(h.rooms))
	ids := make([]types.RoomID, 0, len(h.rooms))
	for id, r := range h.rooms {
		rooms = append(rooms, r)
		ids = append(ids, id)
	}
	h.mu.Unlock()

	stats := make([]RoomStats, len(rooms))
	for i, r := range rooms {
		conns := r.ConnectionStats()
		connStats := make([]ConnectionStats, len(conns))
		for j, c := range conns {
			connStats[j] = ConnectionStats{
				ParticipantID: c.ParticipantID,
				LastRTTMillis: c.LastRTTMillis,
				MessageCount:  c.MessageCount,
			}
		}
		stats[i] = RoomStats{RoomID: string(ids[i]), Participants: r.ParticipantCount(), Connections: connStats}
	}
	return stats
}

// RoomCount reports the current number of active rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Shutdown cancels every pending cleanup timer and shuts down every
// active room, waiting up to the context deadline for all of them.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for roomID, timer := range h.pendingRoomCleanups {
		timer.Stop()
		delete(h.pendingRoomCleanups, roomID)
	}
	rooms := make([]*room.Room, 0, len(h.rooms))
	for id, r := range h.rooms {
		rooms = append(rooms, r)
		delete(h.rooms, id)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(rooms))
	for i, r := range rooms {
		wg.Add(1)
		go func(i int, r *room.Room) {
			defer wg.Done()
			errs[i] = r.Shutdown(ctx)
		}(i, r)
	}
	wg.Wait()

	metrics.ActiveRooms.Set(0)
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
