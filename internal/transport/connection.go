// Package transport owns the per-socket connection lifecycle: reading
// frames off a WebSocket, decoding them, handing them to the owning room,
// and writing outbound frames back out through two priority channels so
// lifecycle events can never be starved by a flood of position updates.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/reeftide/abyssal-server/internal/logging"
	"github.com/reeftide/abyssal-server/internal/metrics"
	"github.com/reeftide/abyssal-server/internal/ratelimit"
	"github.com/reeftide/abyssal-server/internal/room"
	"github.com/reeftide/abyssal-server/internal/types"
	"github.com/reeftide/abyssal-server/internal/wire"
)

// wsConnection is the subset of *websocket.Conn the connection needs,
// narrowed to an interface so tests can substitute a fake socket.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	keepaliveEvery = 30 * time.Second

	sendQueueDepth     = 64
	prioritySendDepth  = 64
)

// Room is the subset of *room.Room a Connection needs. Declared here
// (rather than imported from package room) so transport never depends on
// room's internals, only on the contract it calls through.
type Room interface {
	Join(ctx context.Context, sender room.Sender, req wire.JoinGame) (wire.Welcome, error)
	SubmitTransform(id types.ParticipantID, pos wire.Position, now int64) error
	AbilityStart(ctx context.Context, id types.ParticipantID, ability types.AbilityKey, params map[string]string) error
	AbilityStop(ctx context.Context, id types.ParticipantID, ability types.AbilityKey, params map[string]string) error
	PrismPlace(ctx context.Context, id types.ParticipantID, req wire.PrismPlace) error
	PrismRemove(ctx context.Context, id types.ParticipantID, prismID types.PrismID) error
	Chat(ctx context.Context, id types.ParticipantID, text string, isEmoji, showProximity bool) error
	RequestMapChange(ctx context.Context, requesterID types.ParticipantID, newSeed uint32) error
	RelayHostPayload(senderID types.ParticipantID, tag wire.MessageTag, rawFrame []byte) error
	EatNPC(ctx context.Context, id types.ParticipantID, npcID types.NPCID) error
	Ping(id types.ParticipantID, clientTime int64) error
	Disconnect(ctx context.Context, id types.ParticipantID) error
}

// Connection is one client socket's lifecycle: unauthenticated until
// JOIN_GAME succeeds, then seated in exactly one room for its lifetime.
type Connection struct {
	conn wsConnection
	room Room

	mu            sync.RWMutex
	participantID types.ParticipantID
	seated        bool
	closeOnce     sync.Once
	closed        bool

	send         chan []byte // normal traffic; when full, the oldest queued frame is dropped for the new one
	prioritySend chan []byte // lifecycle events; never dropped
	closeCh      chan struct{}

	limiter  *ratelimit.AbuseLimiter // nil disables per-message throttling
	limitKey string
}

// New wraps an already-upgraded socket with no per-message rate
// limiting. The connection is not seated in any room until JOIN_GAME is
// processed.
func New(conn wsConnection, room Room) *Connection {
	return NewLimited(conn, room, nil, "")
}

// NewLimited wraps an already-upgraded socket with a shared AbuseLimiter
// keyed by limitKey (typically the remote address), enforcing the
// sustained-abuse-disconnect boundary alongside the Hub's per-IP join
// throttle.
func NewLimited(conn wsConnection, room Room, limiter *ratelimit.AbuseLimiter, limitKey string) *Connection {
	return &Connection{
		conn:         conn,
		room:         room,
		send:         make(chan []byte, sendQueueDepth),
		prioritySend: make(chan []byte, prioritySendDepth),
		closeCh:      make(chan struct{}),
		limiter:      limiter,
		limitKey:     limitKey,
	}
}

// ParticipantID satisfies room.Sender.
func (c *Connection) ParticipantID() types.ParticipantID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participantID
}

func (c *Connection) setParticipantID(id types.ParticipantID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participantID = id
	c.seated = true
}

// SendPriority satisfies room.Sender: lifecycle traffic is never dropped
// on a full queue; it blocks with a bounded timeout instead, because a
// reader this far behind is about to be disconnected by its own
// keepalive deadline anyway.
func (c *Connection) SendPriority(frame []byte) {
	select {
	case c.prioritySend <- frame:
	case <-time.After(writeWait):
		logging.Error(context.Background(), "priority send timed out, closing connection",
			zap.Uint32("participant_id", uint32(c.ParticipantID())))
		c.Close()
	}
}

// SendCoalescable satisfies room.Sender and never blocks: if the queue is
// full, the oldest queued frame is dropped to make room for frame instead
// of the channel growing unbounded under a backpressured writer. tag is
// not consulted; queued frames are not replaced by tag.
func (c *Connection) SendCoalescable(tag wire.MessageTag, frame []byte) {
	select {
	case c.send <- frame:
		return
	default:
	}
	// Queue full: drain one stale entry and retry once. Only ever races
	// with this connection's own writePump consumer, so this cannot spin.
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- frame:
	default:
		logging.Warn(context.Background(), "coalescable send dropped, queue still full",
			zap.Uint32("participant_id", uint32(c.ParticipantID())))
	}
}

// Close tears down the socket exactly once and wakes both pumps.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.closeCh)
		c.conn.Close()
	})
}

// Run drives the connection until the socket closes or ctx is canceled.
// It blocks until both pumps exit.
func (c *Connection) Run(ctx context.Context) {
	metrics.IncConnection()
	defer metrics.DecConnection()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.closeCh:
		}
	}()
	go func() {
		defer wg.Done()
		c.writePump()
	}()
	go func() {
		defer wg.Done()
		c.readPump(ctx)
	}()
	wg.Wait()

	c.mu.RLock()
	seated, id := c.seated, c.participantID
	c.mu.RUnlock()
	if seated {
		if err := c.room.Disconnect(context.Background(), id); err != nil {
			logging.Error(ctx, "room disconnect failed", zap.Error(err))
		}
	}
}

func (c *Connection) readPump(ctx context.Context) {
	defer c.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		c.handleFrame(ctx, data)
	}
}

func (c *Connection) handleFrame(ctx context.Context, raw []byte) {
	if c.limiter != nil && !c.limiter.AllowMessage(ctx, c.limitKey) {
		logging.Warn(ctx, "connection exceeded message rate, closing", zap.String("key", c.limitKey))
		c.Close()
		return
	}

	tag, value, err := wire.Decode(raw)
	if err != nil {
		logging.Warn(ctx, "dropping malformed frame", zap.Error(err))
		return
	}

	c.mu.RLock()
	seated, id := c.seated, c.participantID
	c.mu.RUnlock()

	if !seated {
		if tag != wire.TagJoinGame {
			logging.Warn(ctx, "dropping message from unseated connection", zap.Uint8("tag", uint8(tag)))
			return
		}
		c.handleJoin(ctx, value.(wire.JoinGame))
		return
	}

	switch v := value.(type) {
	case wire.Position:
		c.room.SubmitTransform(id, v, time.Now().UnixMilli())
	case wire.Ping:
		c.room.Ping(id, v.ClientTime)
	case wire.AbilityEvent:
		if tag == wire.TagAbilityStart {
			c.room.AbilityStart(ctx, id, v.Ability, v.Params)
		} else {
			c.room.AbilityStop(ctx, id, v.Ability, v.Params)
		}
	case wire.PrismPlace:
		c.room.PrismPlace(ctx, id, v)
	case wire.PrismRemove:
		c.room.PrismRemove(ctx, id, types.PrismID(v.PrismID))
	case wire.Chat:
		c.room.Chat(ctx, id, v.Text, v.IsEmoji, v.ShowProximity)
	case wire.RequestMapChange:
		c.room.RequestMapChange(ctx, id, hostSeedFromClock())
	case wire.EatNPC:
		c.room.EatNPC(ctx, id, v.NPCID)
	case wire.NPCOpaque, wire.NPCSnapshot:
		c.room.RelayHostPayload(id, tag, raw)
	default:
		logging.Warn(ctx, "unhandled seated message tag", zap.Uint8("tag", uint8(tag)))
	}
}

func (c *Connection) handleJoin(ctx context.Context, req wire.JoinGame) {
	welcome, err := c.room.Join(ctx, c, req)
	if err != nil {
		logging.Warn(ctx, "join rejected", zap.Error(err))
		c.Close()
		return
	}
	c.setParticipantID(welcome.ParticipantID)

	payload, err := wire.EncodeWelcome(welcome)
	if err != nil {
		logging.Error(ctx, "failed to encode WELCOME", zap.Error(err))
		c.Close()
		return
	}
	c.SendPriority(wire.EncodeFrame(wire.TagWelcome, payload))
}

func (c *Connection) writePump() {
	defer c.conn.Close()
	keepalive := time.NewTicker(keepaliveEvery)
	defer keepalive.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case frame := <-c.prioritySend:
			if !c.writeFrame(frame) {
				return
			}
		case frame := <-c.send:
			if !c.writeFrame(frame) {
				return
			}
		case <-keepalive.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) writeFrame(frame []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		logging.Error(context.Background(), "write failed, closing connection", zap.Error(err))
		return false
	}
	return true
}

// hostSeedFromClock derives a fresh world seed for REQUEST_MAP_CHANGE. The
// protocol leaves seed generation server-side and unspecified beyond
// "new"; using the current time is sufficient since seeds only need to
// differ from the room's current one, not be cryptographically random.
func hostSeedFromClock() uint32 {
	return uint32(time.Now().UnixNano())
}
