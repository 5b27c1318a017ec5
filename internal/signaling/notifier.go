package signaling

import (
	"log/slog"

	"github.com/mossy-p/p2pchat-signaling/internal/lib/logger/sl"
	"github.com/mossy-p/p2pchat-signaling/internal/metrics"
)

// announceJoin tells the joiner who is already present, then tells those
// members about the joiner. It runs after the membership change is applied.
func (h *Hub) announceJoin(p *Peer, existing []*Peer) {
	reply, err := encodeRoomPeers(p.roomID, p.id, peerIDs(existing))
	if err != nil {
		h.log.Error("failed to encode room-peers", sl.Err(err))
		return
	}
	h.deliver(p, reply)

	if len(existing) == 0 {
		return
	}
	joined, err := encodePeerEvent(KindPeerJoined, p.roomID, p.id)
	if err != nil {
		h.log.Error("failed to encode peer-joined", sl.Err(err))
		return
	}
	for _, member := range existing {
		h.deliver(member, joined)
	}
}

func (h *Hub) announceLeave(roomID, peerID string, remaining []*Peer) {
	if len(remaining) == 0 {
		return
	}
	left, err := encodePeerEvent(KindPeerLeft, roomID, peerID)
	if err != nil {
		h.log.Error("failed to encode peer-left", sl.Err(err))
		return
	}
	for _, member := range remaining {
		h.deliver(member, left)
	}
}

// deliver is best effort per target; one slow peer does not affect others.
func (h *Hub) deliver(p *Peer, data []byte) {
	if p.enqueue(data) {
		h.metrics.Delivered()
		return
	}
	h.metrics.Drop(metrics.DropBufferFull)
	h.log.Warn("failed to send message to peer, buffer full", slog.String("peer_id", p.id))
}
