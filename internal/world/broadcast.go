package world

import (
	"github.com/driftsync/server/internal/protocol"
)

// broadcastPass computes and dispatches one area-of-interest batch per
// interested player. Brute-force O(n²) over the player map; fine at the
// scale the bounded channels imply.
//
// Rules:
//   - a player with no interest region receives nothing, but is still a
//     candidate for other players' batches;
//   - a player never appears in its own batch;
//   - interested players get a frame every tick, even an empty one;
//   - a full outbox drops this tick's frame for that player instead of
//     blocking the actor; the next pass resends current state anyway.
func (w *World) broadcastPass() {
	for _, p := range w.players {
		if p.Interest == nil {
			continue
		}

		wr := protocol.NewWriter(len(w.players) - 1)
		for _, q := range w.players {
			if q.ID == p.ID {
				continue
			}
			if !p.Interest.contains(q.Position) {
				continue
			}
			wr.AppendEntity(protocol.Entity{
				ID: uint32(q.ID),
				X:  q.Position.X, Y: q.Position.Y, Z: q.Position.Z,
				RX: q.Rotation.X, RY: q.Rotation.Y, RZ: q.Rotation.Z,
			})
		}

		select {
		case p.outbox <- wr.Bytes():
			w.metrics.IncBroadcasts()
		default:
			w.metrics.IncBroadcastDrops()
		}
	}
}
