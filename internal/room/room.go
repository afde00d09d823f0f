// Package room implements the authoritative per-room game state: a
// single-writer actor that serializes every participant action (join,
// move, eat, chat, ability, prism placement, map change, host election)
// through one goroutine so nothing in the room's state ever needs a lock.
//
// This generalizes the mutex-guarded Room the transport layer was
// originally grounded on into a channel-serialized run loop: instead of
// every public method taking r.mu, every public method submits a closure
// to r.inbound and the run loop is the only goroutine that ever touches
// room state.
package room

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/reeftide/abyssal-server/internal/apperr"
	"github.com/reeftide/abyssal-server/internal/logging"
	"github.com/reeftide/abyssal-server/internal/metrics"
	"github.com/reeftide/abyssal-server/internal/types"
	"github.com/reeftide/abyssal-server/internal/wire"
)

// inboxCapacity bounds how many pending actions a room will queue before
// a submitting connection starts blocking. A full inbox means the room's
// single writer is falling behind, not that any one client is abusive.
const inboxCapacity = 256

// Sender is the outbound half of a connection as seen by a Room.
// SendPriority and SendCoalescable both enqueue into the connection's own
// outbound channels. In the transport implementation SendCoalescable never
// blocks, while SendPriority on a full priority queue waits a bounded time
// (then closes the connection), blocking the room's writer meanwhile.
type Sender interface {
	ParticipantID() types.ParticipantID
	SendPriority(frame []byte)
	SendCoalescable(tag wire.MessageTag, frame []byte)
	Close()
}

// BusService is the optional cross-instance fan-out the room publishes
// position and lifecycle events to. A nil BusService (the default) makes
// the room a pure single-instance authority.
type BusService interface {
	PublishRoomEvent(ctx context.Context, roomID string, tag wire.MessageTag, payload []byte) error
}

type participantState struct {
	sender    Sender
	info      types.Participant
	abilities map[types.AbilityKey]types.AbilityState

	// lastRTTMillis and messageCount back /stats' per-connection
	// observability. lastRTTMillis is the server's own observation of
	// now-clientTime on the most recent PING (see Ping), not the client's
	// own two-way RTT estimate computed by internal/clock.
	lastRTTMillis int64
	messageCount  uint64
}

// Room is one authoritative game session. Every exported method is safe
// to call from any goroutine; all of them hand off to the single run-loop
// goroutine that owns the fields below.
type Room struct {
	ID           types.RoomID
	capacity     int
	tickInterval time.Duration

	inbound chan func()
	bus     BusService
	onEmpty func(types.RoomID)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// --- actor-owned state; touched only inside run() ---
	participants      map[types.ParticipantID]*participantState
	joinOrder         []types.ParticipantID
	hostID            types.ParticipantID
	nextParticipantID types.ParticipantID
	worldSeed         uint32
	npcSeed           uint32
	deadNPCIDs        set.Set[uint32]
	eatClaims         map[types.NPCID]types.ParticipantID
	prisms            map[types.PrismID]types.Prism
	dirty             map[types.ParticipantID]struct{} // moved since last tick
}

// Config bundles the knobs a Hub passes when creating a Room.
type Config struct {
	Capacity     int
	TickRateHz   int
	WorldSeed    uint32
	OnEmpty      func(types.RoomID)
	Bus          BusService // nil disables cross-instance fan-out
}

// deriveNPCSeed produces the host-simulation seed from the room's world
// seed. There is no canonical derivation in the protocol; this uses
// Knuth's multiplicative hash constant. The result depends only on the
// world seed, so rooms with the same world seed get the same NPC seed;
// the multiplier is odd, so distinct world seeds give distinct NPC seeds.
func deriveNPCSeed(worldSeed uint32) uint32 {
	return worldSeed*2654435761 + 1
}

// New constructs a Room and starts its run loop. Callers must eventually
// call Shutdown.
func New(id types.RoomID, cfg Config) *Room {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 32
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 20
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		ID:           id,
		capacity:     cfg.Capacity,
		tickInterval: time.Second / time.Duration(cfg.TickRateHz),
		inbound:      make(chan func(), inboxCapacity),
		bus:          cfg.Bus,
		onEmpty:      cfg.OnEmpty,
		ctx:          ctx,
		cancel:       cancel,

		participants:      make(map[types.ParticipantID]*participantState),
		nextParticipantID: 1,
		worldSeed:         cfg.WorldSeed,
		npcSeed:           deriveNPCSeed(cfg.WorldSeed),
		deadNPCIDs:        set.New[uint32](),
		eatClaims:         make(map[types.NPCID]types.ParticipantID),
		prisms:            make(map[types.PrismID]types.Prism),
		dirty:             make(map[types.ParticipantID]struct{}),
	}

	r.wg.Add(1)
	go r.run()
	return r
}

// run is the room's single writer. Every state mutation in this package
// happens on this goroutine.
func (r *Room) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	ctx := logging.WithRoom(context.Background(), string(r.ID))
	for {
		select {
		case <-r.ctx.Done():
			r.shutdownLocked(ctx)
			return
		case fn := <-r.inbound:
			fn()
		case <-ticker.C:
			r.tickLocked()
		}
	}
}

// submit hands fn to the run loop and blocks until it has executed, or
// until the room shuts down first. Submit is the only way any other
// goroutine touches room state.
func (r *Room) submit(fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case r.inbound <- wrapped:
	case <-r.ctx.Done():
		return &apperr.TimeoutError{Op: "room " + string(r.ID) + " is shutting down"}
	}
	select {
	case <-done:
		return nil
	case <-r.ctx.Done():
		return &apperr.TimeoutError{Op: "room " + string(r.ID) + " is shutting down"}
	}
}

// Shutdown cancels the room's run loop and waits for it to exit, or for
// ctx to expire first.
func (r *Room) Shutdown(ctx context.Context) error {
	r.cancel()
	c := make(chan struct{})
	go func() {
		defer close(c)
		r.wg.Wait()
	}()
	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) shutdownLocked(ctx context.Context) {
	logging.Info(ctx, "room shutting down", zap.Int("participants", len(r.participants)))
	for _, p := range r.participants {
		p.sender.Close()
	}
	metrics.RoomParticipants.DeleteLabelValues(string(r.ID))
}

// ParticipantCount reports the current seated participant count. It is
// safe to call concurrently: the read is submitted to the run loop like
// every other access to room state. It returns 0 once the room has shut
// down.
func (r *Room) ParticipantCount() int {
	count := 0
	_ = r.submit(func() { count = len(r.participants) })
	return count
}

// ConnectionStats is one seated participant's observability snapshot, as
// reported by /stats.
type ConnectionStats struct {
	ParticipantID types.ParticipantID
	LastRTTMillis int64
	MessageCount  uint64
}

// ConnectionStats snapshots every seated participant's last-observed RTT
// and inbound message count.
func (r *Room) ConnectionStats() []ConnectionStats {
	var stats []ConnectionStats
	_ = r.submit(func() {
		stats = make([]ConnectionStats, 0, len(r.participants))
		for id, p := range r.participants {
			stats = append(stats, ConnectionStats{
				ParticipantID: id,
				LastRTTMillis: p.lastRTTMillis,
				MessageCount:  p.messageCount,
			})
		}
	})
	return stats
}

// touchMessageLocked records that id sent a frame the room processed, for
// the per-connection message counters ConnectionStats reports. No-op if
// id isn't currently seated.
func (r *Room) touchMessageLocked(id types.ParticipantID) {
	if p, ok := r.participants[id]; ok {
		p.messageCount++
	}
}

func (r *Room) tickLocked() {
	if len(r.dirty) == 0 {
		return
	}
	r.broadcastBatchPositionsLocked()
	r.dirty = make(map[types.ParticipantID]struct{})
}
