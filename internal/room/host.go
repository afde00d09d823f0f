package room

import (
	"context"

	"go.uber.org/zap"

	"github.com/reeftide/abyssal-server/internal/logging"
	"github.com/reeftide/abyssal-server/internal/metrics"
	"github.com/reeftide/abyssal-server/internal/types"
	"github.com/reeftide/abyssal-server/internal/wire"
)

// electHostLocked picks the earliest-joined remaining participant as the
// new host. Caller runs on the room's single writer.
func (r *Room) electHostLocked(ctx context.Context) {
	var next types.ParticipantID
	for _, id := range r.joinOrder {
		if _, ok := r.participants[id]; ok {
			next = id
			break
		}
	}
	if next == r.hostID {
		return
	}
	r.hostID = next
	metrics.HostElections.WithLabelValues(string(r.ID)).Inc()
	if next == 0 {
		return
	}
	logging.Info(ctx, "host re-elected", zap.Uint32("host_id", uint32(next)))
	payload, err := wire.EncodeHostChanged(wire.HostChanged{HostID: next})
	if err != nil {
		logging.Error(ctx, "failed to encode HOST_CHANGED", zap.Error(err))
		return
	}
	r.broadcastPriorityLocked(wire.EncodeFrame(wire.TagHostChanged, payload), 0)
}

// removeFromJoinOrderLocked drops id from the join-order slice.
func (r *Room) removeFromJoinOrderLocked(id types.ParticipantID) {
	for i, candidate := range r.joinOrder {
		if candidate == id {
			r.joinOrder = append(r.joinOrder[:i], r.joinOrder[i+1:]...)
			return
		}
	}
}
