package signaling

import (
	"log/slog"

	"github.com/mossy-p/p2pchat-signaling/internal/lib/logger/sl"
	"github.com/mossy-p/p2pchat-signaling/internal/metrics"
)

// route interprets one inbound frame. Nothing here is reported back to the
// sender: bad input is logged and dropped, routing misses are silent.
func (h *Hub) route(p *Peer, data []byte) {
	if p.id == "" || !h.isLive(p) {
		return
	}

	env, err := ParseEnvelope(data)
	if err != nil {
		h.metrics.Drop(metrics.DropMalformed)
		h.log.Warn("dropping envelope", slog.String("peer_id", p.id), sl.Err(err))
		return
	}
	h.metrics.Envelope(string(env.Kind))

	switch {
	case env.Kind == KindJoinRoom:
		h.join(p, env.RoomID)
	case env.Kind.IsNegotiation():
		h.relay(p, env)
	}
}

func (h *Hub) isLive(p *Peer) bool {
	registered, ok := h.registry.Resolve(p.id)
	return ok && registered == p
}

func (h *Hub) join(p *Peer, roomID string) {
	if p.roomID != "" {
		h.metrics.Drop(metrics.DropRejoin)
		h.log.Warn("peer already joined a room",
			slog.String("peer_id", p.id),
			slog.String("room_id", p.roomID),
			slog.String("requested_room_id", roomID),
		)
		return
	}

	existing := h.rooms.Join(roomID, p)
	p.roomID = roomID
	if h.presence != nil {
		h.presence.PeerJoined(roomID, p.id)
	}
	h.metrics.SetRooms(h.rooms.Len())

	h.log.Info("peer joined room",
		slog.String("peer_id", p.id),
		slog.String("room_id", roomID),
		slog.Int("members", len(existing)+1),
	)
	h.announceJoin(p, existing)
}

func (h *Hub) relay(p *Peer, env *Envelope) {
	if p.roomID == "" {
		h.metrics.Drop(metrics.DropNotJoined)
		h.log.Debug("negotiation before join", slog.String("peer_id", p.id), slog.String("type", string(env.Kind)))
		return
	}

	target, ok := h.registry.Resolve(env.To)
	if !ok {
		h.metrics.Drop(metrics.DropUnknownTarget)
		h.log.Debug("target peer gone", slog.String("peer_id", p.id), slog.String("to", env.To))
		return
	}
	if target == p {
		h.metrics.Drop(metrics.DropSelfTarget)
		return
	}
	if !h.rooms.Contains(p.roomID, target) {
		h.metrics.Drop(metrics.DropCrossRoom)
		h.log.Warn("target outside sender room",
			slog.String("peer_id", p.id),
			slog.String("room_id", p.roomID),
			slog.String("to", env.To),
		)
		return
	}

	data, err := env.Forward(p.id, p.roomID)
	if err != nil {
		h.log.Error("failed to encode relayed envelope", sl.Err(err))
		return
	}

	h.log.Debug("relaying envelope",
		slog.String("type", string(env.Kind)),
		slog.String("from", p.id),
		slog.String("to", target.id),
	)
	h.deliver(target, data)
}
