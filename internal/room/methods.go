package room

import (
	"context"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/reeftide/abyssal-server/internal/apperr"
	"github.com/reeftide/abyssal-server/internal/logging"
	"github.com/reeftide/abyssal-server/internal/metrics"
	"github.com/reeftide/abyssal-server/internal/types"
	"github.com/reeftide/abyssal-server/internal/wire"
)

// Join seats a new participant. It assigns the participant ID, seeds its
// initial state, and returns the WELCOME payload the caller should send
// back on its own connection before any broadcast can race it.
func (r *Room) Join(ctx context.Context, sender Sender, req wire.JoinGame) (wire.Welcome, error) {
	var welcome wire.Welcome
	var joinErr error

	err := r.submit(func() {
		if len(r.participants) >= r.capacity {
			joinErr = &apperr.CapacityError{RoomID: string(r.ID), Capacity: r.capacity}
			return
		}

		id := r.nextParticipantID
		r.nextParticipantID++

		now := time.Now().UnixMilli()
		p := &participantState{
			sender: sender,
			info: types.Participant{
				ID:          id,
				DisplayName: types.DisplayName(req.DisplayName),
				Creature:    req.Creature,
				JoinedAt:    now,
				LastSeenAt:  now,
				WorldVolume: 1,
			},
			abilities: make(map[types.AbilityKey]types.AbilityState),
		}
		r.participants[id] = p
		r.joinOrder = append(r.joinOrder, id)

		wasEmpty := r.hostID == 0
		if wasEmpty {
			r.hostID = id
		}

		existing := make([]wire.ParticipantSnapshot, 0, len(r.participants)-1)
		for otherID, other := range r.participants {
			if otherID == id {
				continue
			}
			existing = append(existing, wire.ParticipantSnapshot{
				ID:          otherID,
				DisplayName: string(other.info.DisplayName),
				Creature:    other.info.Creature,
				Transform:   other.info.Transform,
				WorldVolume: other.info.WorldVolume,
			})
		}

		welcome = wire.Welcome{
			ParticipantID:        id,
			RoomID:               string(r.ID),
			WorldSeed:            r.worldSeed,
			NPCSeed:               r.npcSeed,
			DeadNPCIDs:           r.deadNPCIDs.UnsortedList(),
			ExistingParticipants: existing,
			HostID:               r.hostID,
			IsHost:               r.hostID == id,
		}

		join := wire.PlayerJoin{
			ParticipantID: id,
			DisplayName:   string(p.info.DisplayName),
			Creature:      p.info.Creature,
			Transform:     p.info.Transform,
			WorldVolume:   p.info.WorldVolume,
		}
		payload, err := wire.EncodePlayerJoin(join)
		if err != nil {
			logging.Error(ctx, "failed to encode PLAYER_JOIN", zap.Error(err))
		} else {
			r.broadcastPriorityLocked(wire.EncodeFrame(wire.TagPlayerJoin, payload), id)
		}

		metrics.RoomParticipants.WithLabelValues(string(r.ID)).Set(float64(len(r.participants)))
	})
	if err != nil {
		return wire.Welcome{}, err
	}
	return welcome, joinErr
}

// SubmitTransform records a participant's latest pose. It never broadcasts
// synchronously — the pose is marked dirty and picked up by the next tick
// so every connection's BATCH_POSITIONS reflects a consistent snapshot.
func (r *Room) SubmitTransform(id types.ParticipantID, pos wire.Position, now int64) error {
	return r.submit(func() {
		p, ok := r.participants[id]
		if !ok {
			return
		}
		p.messageCount++
		p.info.Transform = types.Transform{Pos: pos.Pos, Rot: pos.Rot, VisualScale: pos.Scale, ServerTime: now}
		p.info.LastSeenAt = now
		if pos.HasVolume {
			p.info.WorldVolume = types.ClampWorldVolume(pos.Volume)
		}
		r.dirty[id] = struct{}{}
	})
}

// AbilityStart/AbilityStop update the server's last-known ability state
// and relay the event verbatim; the server never interprets ability
// semantics. The recorded state is not read by any other operation:
// WELCOME carries no ability state, so late joiners do not receive it.
func (r *Room) AbilityStart(ctx context.Context, id types.ParticipantID, ability types.AbilityKey, params map[string]string) error {
	return r.relayAbility(ctx, id, ability, params, true, wire.TagAbilityStart)
}

func (r *Room) AbilityStop(ctx context.Context, id types.ParticipantID, ability types.AbilityKey, params map[string]string) error {
	return r.relayAbility(ctx, id, ability, params, false, wire.TagAbilityStop)
}

func (r *Room) relayAbility(ctx context.Context, id types.ParticipantID, ability types.AbilityKey, params map[string]string, active bool, tag wire.MessageTag) error {
	return r.submit(func() {
		if !types.ValidAbilityKey(ability) {
			return
		}
		p, ok := r.participants[id]
		if !ok {
			return
		}
		p.messageCount++
		p.abilities[ability] = types.AbilityState{Active: active, Params: params}

		payload, err := wire.EncodeAbilityEvent(wire.AbilityEvent{ParticipantID: id, Ability: ability, Params: params})
		if err != nil {
			logging.Error(ctx, "failed to encode ability event", zap.Error(err))
			return
		}
		r.broadcastPriorityLocked(wire.EncodeFrame(tag, payload), id)
	})
}

// PrismPlace registers a new structure and broadcasts it.
func (r *Room) PrismPlace(ctx context.Context, id types.ParticipantID, req wire.PrismPlace) error {
	return r.submit(func() {
		r.touchMessageLocked(id)
		r.prisms[types.PrismID(req.PrismID)] = types.Prism{
			ID:       types.PrismID(req.PrismID),
			PlacerID: id,
			Geometry: req.Geometry,
		}
		payload, err := wire.EncodePrismPlace(req)
		if err != nil {
			logging.Error(ctx, "failed to encode PRISM_PLACE", zap.Error(err))
			return
		}
		r.broadcastPriorityLocked(wire.EncodeFrame(wire.TagPrismPlace, payload), 0)
	})
}

// PrismRemove deletes a structure if its placer requested the removal.
func (r *Room) PrismRemove(ctx context.Context, id types.ParticipantID, prismID types.PrismID) error {
	return r.submit(func() {
		prism, ok := r.prisms[prismID]
		if !ok || prism.PlacerID != id {
			return
		}
		r.touchMessageLocked(id)
		delete(r.prisms, prismID)
		payload, err := wire.EncodePrismRemove(wire.PrismRemove{PrismID: string(prismID), PlacerID: id})
		if err != nil {
			logging.Error(ctx, "failed to encode PRISM_REMOVE", zap.Error(err))
			return
		}
		r.broadcastPriorityLocked(wire.EncodeFrame(wire.TagPrismRemove, payload), 0)
	})
}

// Chat relays a text or emoji message. showProximity is forwarded
// verbatim; proximity filtering is a client-side rendering concern, not
// an authorization boundary the server enforces (see DESIGN.md).
func (r *Room) Chat(ctx context.Context, id types.ParticipantID, text string, isEmoji, showProximity bool) error {
	return r.submit(func() {
		r.touchMessageLocked(id)
		if len(text) > types.MaxChatOctets {
			text = text[:types.MaxChatOctets]
		}
		payload, err := wire.EncodeChat(wire.Chat{SenderID: id, Text: text, IsEmoji: isEmoji, ShowProximity: showProximity})
		if err != nil {
			logging.Error(ctx, "failed to encode CHAT", zap.Error(err))
			return
		}
		r.broadcastPriorityLocked(wire.EncodeFrame(wire.TagChat, payload), 0)
	})
}

// RequestMapChange is honored only from the current host; it reseeds the
// room's world and NPC seeds and broadcasts the new map.
func (r *Room) RequestMapChange(ctx context.Context, requesterID types.ParticipantID, newSeed uint32) error {
	return r.submit(func() {
		if requesterID != r.hostID {
			return
		}
		r.touchMessageLocked(requesterID)
		r.worldSeed = newSeed
		r.npcSeed = deriveNPCSeed(newSeed)
		r.deadNPCIDs = set.New[uint32]()
		r.eatClaims = make(map[types.NPCID]types.ParticipantID)

		payload, err := wire.EncodeMapChange(wire.MapChange{Seed: newSeed, RequesterID: requesterID})
		if err != nil {
			logging.Error(ctx, "failed to encode MAP_CHANGE", zap.Error(err))
			return
		}
		r.broadcastPriorityLocked(wire.EncodeFrame(wire.TagMapChange, payload), 0)
	})
}

// RelayHostPayload forwards a host-authored, server-opaque payload
// (NPC_SPAWN, NPC_BATCH_SPAWN, NPC_SNAPSHOT) to every other participant.
// Non-host senders are ignored.
func (r *Room) RelayHostPayload(senderID types.ParticipantID, tag wire.MessageTag, rawFrame []byte) error {
	return r.submit(func() {
		if senderID != r.hostID {
			return
		}
		r.touchMessageLocked(senderID)
		r.broadcastPriorityLocked(rawFrame, senderID)
	})
}

// EatNPC resolves one participant's claim on an NPC.
func (r *Room) EatNPC(ctx context.Context, id types.ParticipantID, npcID types.NPCID) error {
	return r.submit(func() { r.eatNPCLocked(ctx, id, npcID) })
}

// Ping answers a client's latency probe with a PONG sent only to the
// sender. It runs through submit because it reads and updates the
// participant's state (last observed RTT and message count), which also
// keeps response ordering consistent with everything else the connection
// does.
func (r *Room) Ping(id types.ParticipantID, clientTime int64) error {
	return r.submit(func() {
		p, ok := r.participants[id]
		if !ok {
			return
		}
		now := time.Now().UnixMilli()
		// This is the server's own one-leg observation (now - clientTime), not
		// a full PING/PONG/client-received round trip; it's cruder than the
		// client's own internal/clock estimate but is what /stats can report
		// without the server running a Clock of its own.
		if observed := now - clientTime; observed >= 0 {
			p.lastRTTMillis = observed
		}
		p.messageCount++
		payload, err := wire.EncodePong(wire.Pong{ClientTime: clientTime, ServerTime: now})
		if err != nil {
			return
		}
		p.sender.SendPriority(wire.EncodeFrame(wire.TagPong, payload))
	})
}

// Disconnect removes a participant, re-elects a host if necessary, and
// broadcasts PLAYER_LEAVE. It is idempotent: disconnecting an unknown or
// already-removed participant is a no-op.
func (r *Room) Disconnect(ctx context.Context, id types.ParticipantID) error {
	return r.submit(func() {
		if _, ok := r.participants[id]; !ok {
			return
		}
		delete(r.participants, id)
		delete(r.dirty, id)
		r.removeFromJoinOrderLocked(id)

		for prismID, prism := range r.prisms {
			if prism.PlacerID != id {
				continue
			}
			delete(r.prisms, prismID)
			removePayload, removeErr := wire.EncodePrismRemove(wire.PrismRemove{PrismID: string(prismID), PlacerID: id})
			if removeErr != nil {
				logging.Error(ctx, "failed to encode PRISM_REMOVE", zap.Error(removeErr))
				continue
			}
			r.broadcastPriorityLocked(wire.EncodeFrame(wire.TagPrismRemove, removePayload), 0)
		}

		payload, err := wire.EncodePlayerLeave(wire.PlayerLeave{ParticipantID: id})
		if err != nil {
			logging.Error(ctx, "failed to encode PLAYER_LEAVE", zap.Error(err))
		} else {
			r.broadcastPriorityLocked(wire.EncodeFrame(wire.TagPlayerLeave, payload), 0)
		}

		if id == r.hostID {
			r.electHostLocked(ctx)
		}

		if len(r.participants) > 0 {
			metrics.RoomParticipants.WithLabelValues(string(r.ID)).Set(float64(len(r.participants)))
		} else {
			metrics.RoomParticipants.DeleteLabelValues(string(r.ID))
			if r.onEmpty != nil {
				go r.onEmpty(r.ID)
			}
		}
	})
}
