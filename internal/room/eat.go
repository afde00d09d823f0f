package room

import (
	"context"

	"go.uber.org/zap"

	"github.com/reeftide/abyssal-server/internal/logging"
	"github.com/reeftide/abyssal-server/internal/metrics"
	"github.com/reeftide/abyssal-server/internal/types"
	"github.com/reeftide/abyssal-server/internal/wire"
)

// eatNPCLocked resolves one participant's claim to have consumed an NPC.
// The dedup table (npcID -> first acceptor) makes this idempotent under
// the inherent race of two clients claiming the same NPC in the same
// tick: only the first claim is accepted and broadcast; every later claim
// for that NPC gets a private echo of the original resolution instead of
// a second broadcast.
func (r *Room) eatNPCLocked(ctx context.Context, eaterID types.ParticipantID, npcID types.NPCID) {
	r.touchMessageLocked(eaterID)
	if winner, claimed := r.eatClaims[npcID]; claimed {
		metrics.EatClaims.WithLabelValues("rejected_duplicate").Inc()
		payload, err := wire.EncodeNPCDeath(wire.NPCDeath{NPCID: npcID, EatenBy: winner})
		if err != nil {
			logging.Error(ctx, "failed to encode NPC_DEATH echo", zap.Error(err))
			return
		}
		r.sendPriorityTo(eaterID, wire.EncodeFrame(wire.TagNPCDeath, payload))
		return
	}

	if r.deadNPCIDs.Has(uint32(npcID)) {
		// Dead before this room instance ever recorded a claim (carried
		// over via WELCOME's deadNPCIDs). No known eater to credit.
		metrics.EatClaims.WithLabelValues("rejected_unknown_npc").Inc()
		payload, err := wire.EncodeNPCDeath(wire.NPCDeath{NPCID: npcID, EatenBy: 0})
		if err != nil {
			logging.Error(ctx, "failed to encode NPC_DEATH echo", zap.Error(err))
			return
		}
		r.sendPriorityTo(eaterID, wire.EncodeFrame(wire.TagNPCDeath, payload))
		return
	}

	r.eatClaims[npcID] = eaterID
	r.deadNPCIDs.Insert(uint32(npcID))
	metrics.EatClaims.WithLabelValues("accepted").Inc()

	payload, err := wire.EncodeNPCDeath(wire.NPCDeath{NPCID: npcID, EatenBy: eaterID})
	if err != nil {
		logging.Error(ctx, "failed to encode NPC_DEATH", zap.Error(err))
		return
	}
	r.broadcastPriorityLocked(wire.EncodeFrame(wire.TagNPCDeath, payload), 0)

	// Credit the eater with a private hint, distinct from the NPC_DEATH
	// broadcast everyone else also receives. The server does not know the
	// eaten NPC's opaque volume and never invents a growth amount itself:
	// the eater's client performs the additive growth and reports the
	// result back through its own subsequent SubmitTransform, which the
	// server clamps like any other worldVolume update.
	if p, ok := r.participants[eaterID]; ok {
		hintPayload, hintErr := wire.EncodeSizeUpdate(wire.SizeUpdate{ParticipantID: eaterID, Scale: p.info.Transform.VisualScale})
		if hintErr != nil {
			logging.Error(ctx, "failed to encode volume-gain hint", zap.Error(hintErr))
			return
		}
		r.sendPriorityTo(eaterID, wire.EncodeFrame(wire.TagSizeUpdate, hintPayload))
	}
}
