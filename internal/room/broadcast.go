package room

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/reeftide/abyssal-server/internal/logging"
	"github.com/reeftide/abyssal-server/internal/types"
	"github.com/reeftide/abyssal-server/internal/wire"
)

// broadcastPriorityLocked sends frame to every seated participant except
// exclude (pass 0 to exclude no one). Priority frames are lifecycle
// events that must never be dropped or reordered relative to each other.
func (r *Room) broadcastPriorityLocked(frame []byte, exclude types.ParticipantID) {
	for id, p := range r.participants {
		if id == exclude {
			continue
		}
		p.sender.SendPriority(frame)
	}
	r.publishToBusLocked(frame)
}

// publishToBusLocked fans frame out to other instances via the optional
// Redis bus. The publish itself runs off the room's single writer so a
// degraded bus can never stall gameplay; r.wg tracks the goroutine so
// Shutdown still waits for it to finish.
func (r *Room) publishToBusLocked(frame []byte) {
	if r.bus == nil {
		return
	}
	frameCopy, decodeErr := wire.DecodeFrame(frame)
	if decodeErr != nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.bus.PublishRoomEvent(ctx, string(r.ID), frameCopy.Tag, frameCopy.Payload); err != nil {
			logging.Warn(ctx, "failed to publish room event to bus", zap.Error(err))
		}
	}()
}

// sendPriorityTo delivers frame to a single participant, if still seated.
func (r *Room) sendPriorityTo(id types.ParticipantID, frame []byte) {
	if p, ok := r.participants[id]; ok {
		p.sender.SendPriority(frame)
	}
}

// broadcastBatchPositionsLocked builds one BATCH_POSITIONS frame covering
// every participant that moved since the last tick and sends it to
// everyone, including participants that didn't move (they still need the
// others' updates). Coalescable: the frame goes through SendCoalescable,
// so a connection whose outbound queue is full drops its oldest queued
// frame to make room instead of growing unbounded.
func (r *Room) broadcastBatchPositionsLocked() {
	entries := make([]wire.BatchEntry, 0, len(r.dirty))
	now := int64(0)
	for id := range r.dirty {
		p, ok := r.participants[id]
		if !ok {
			continue
		}
		t := p.info.Transform
		if t.ServerTime > now {
			now = t.ServerTime
		}
		entries = append(entries, wire.BatchEntry{
			ID:        id,
			Pos:       t.Pos,
			Rot:       t.Rot,
			Scale:     t.VisualScale,
			HasVolume: true,
			Volume:    p.info.WorldVolume,
		})
	}
	if len(entries) == 0 {
		return
	}
	payload, err := wire.EncodeBatchPositions(wire.BatchPositions{ServerTime: now, Entries: entries})
	if err != nil {
		logging.Error(context.Background(), "failed to encode BATCH_POSITIONS", zap.Error(err))
		return
	}
	frame := wire.EncodeFrame(wire.TagBatchPositions, payload)
	for _, p := range r.participants {
		p.sender.SendCoalescable(wire.TagBatchPositions, frame)
	}
}
