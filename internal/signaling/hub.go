package signaling

import (
	"context"
	"log/slog"

	"github.com/mossy-p/p2pchat-signaling/internal/metrics"
)

const eventQueueSize = 1024

type eventKind int

const (
	eventConnect eventKind = iota
	eventMessage
	eventDisconnect
	eventQuery
)

type event struct {
	kind  eventKind
	peer  *Peer
	data  []byte
	query func()
}

// PresenceRecorder is told about membership changes after they are applied.
// Calls are made from the hub goroutine and must not block.
type PresenceRecorder interface {
	PeerJoined(roomID, peerID string)
	PeerLeft(roomID, peerID string)
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Peers int `json:"peers"`
	Rooms int `json:"rooms"`
}

// Hub is the single owner of the connection registry and the room
// membership table. Transport events are queued on one channel, so events of
// a connection are applied in the order they were submitted and room
// changes are totally ordered.
type Hub struct {
	events chan event
	done   chan struct{}

	registry *Registry
	rooms    *Membership

	presence PresenceRecorder
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(log *slog.Logger) Option {
	return func(h *Hub) { h.log = log }
}

// WithMetrics records connection, room and routing metrics to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithPresence reports membership changes to p.
func WithPresence(p PresenceRecorder) Option {
	return func(h *Hub) { h.presence = p }
}

// NewHub creates a hub. It does nothing until Run is called.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		events:   make(chan event, eventQueueSize),
		done:     make(chan struct{}),
		registry: NewRegistry(),
		rooms:    NewMembership(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With(slog.String("component", "signaling.hub"))
	return h
}

// Run processes events until ctx is cancelled. On return every remaining
// peer queue is closed so the transports shut down.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	h.log.Info("hub started")
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.events:
			h.handle(ev)
		}
	}
}

// Connect registers a new transport session.
func (h *Hub) Connect(p *Peer) bool {
	return h.submit(event{kind: eventConnect, peer: p})
}

// Deliver hands one inbound frame from p to the router.
func (h *Hub) Deliver(p *Peer, data []byte) bool {
	return h.submit(event{kind: eventMessage, peer: p, data: data})
}

// Disconnect runs the cleanup path for p. Repeated calls are no-ops.
func (h *Hub) Disconnect(p *Peer) bool {
	return h.submit(event{kind: eventDisconnect, peer: p})
}

// MembersOf returns the identifiers of the peers currently in roomID.
func (h *Hub) MembersOf(roomID string) []string {
	var ids []string
	h.query(func() {
		ids = peerIDs(h.rooms.MembersOf(roomID))
	})
	return ids
}

// Stats returns the live peer and room counts, or zero values after Run
// has returned.
func (h *Hub) Stats() Stats {
	var s Stats
	h.query(func() {
		s = Stats{Peers: h.registry.Len(), Rooms: h.rooms.Len()}
	})
	return s
}

func (h *Hub) submit(ev event) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) query(fn func()) bool {
	reply := make(chan struct{})
	ok := h.submit(event{kind: eventQuery, query: func() {
		fn()
		close(reply)
	}})
	if !ok {
		return false
	}

	select {
	case <-reply:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) handle(ev event) {
	switch ev.kind {
	case eventConnect:
		h.connect(ev.peer)
	case eventMessage:
		h.route(ev.peer, ev.data)
	case eventDisconnect:
		h.disconnect(ev.peer)
	case eventQuery:
		ev.query()
	}
}

func (h *Hub) connect(p *Peer) {
	if p.closed {
		return
	}
	id := h.registry.Register(p)
	h.metrics.SetConnections(h.registry.Len())
	h.log.Debug("peer connected", slog.String("peer_id", id), slog.String("remote_addr", p.remoteAddr))
}

func (h *Hub) disconnect(p *Peer) {
	if !h.registry.Unregister(p) {
		return
	}

	if p.roomID != "" {
		remaining, ok := h.rooms.Leave(p.roomID, p)
		if ok {
			if h.presence != nil {
				h.presence.PeerLeft(p.roomID, p.id)
			}
			h.announceLeave(p.roomID, p.id, remaining)
		}
	}

	p.close()
	h.metrics.SetConnections(h.registry.Len())
	h.metrics.SetRooms(h.rooms.Len())
	h.log.Debug("peer disconnected", slog.String("peer_id", p.id), slog.String("room_id", p.roomID))
}

// shutdown closes every peer queue, including those of peers whose connect
// event was still queued, so no transport outlives the hub.
func (h *Hub) shutdown() {
	close(h.done)
	h.dropQueued()
	for _, p := range h.registry.peers {
		p.close()
	}
	h.log.Info("hub stopped", slog.Int("peers", h.registry.Len()))
}

// dropQueued discards events still buffered at shutdown. Peers that never
// got registered have their queues closed here.
func (h *Hub) dropQueued() {
	for {
		select {
		case ev := <-h.events:
			if ev.kind == eventConnect {
				ev.peer.close()
			}
		default:
			return
		}
	}
}
