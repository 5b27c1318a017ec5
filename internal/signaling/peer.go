package signaling

// Peer is one live signaling connection. Its identifier and room are set by
// the hub goroutine only; the transport reads frames from Send.
type Peer struct {
	id         string
	roomID     string
	remoteAddr string

	send   chan []byte
	closed bool
}

// NewPeer creates an unregistered peer with an outbound queue of the given
// size.
func NewPeer(remoteAddr string, buffer int) *Peer {
	if buffer <= 0 {
		buffer = 1
	}
	return &Peer{
		remoteAddr: remoteAddr,
		send:       make(chan []byte, buffer),
	}
}

// ID returns the relay-assigned identifier. It is empty until the hub has
// processed the peer's connect event.
func (p *Peer) ID() string { return p.id }

// RoomID returns the joined room, or "" before join-room.
func (p *Peer) RoomID() string { return p.roomID }

// RemoteAddr is the client address the transport reported.
func (p *Peer) RemoteAddr() string { return p.remoteAddr }

// Send is closed by the hub once the peer has been removed.
func (p *Peer) Send() <-chan []byte { return p.send }

// enqueue never blocks; a full queue drops the frame.
func (p *Peer) enqueue(data []byte) bool {
	if p.closed {
		return false
	}
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

func (p *Peer) close() {
	if p.closed {
		return
	}
	p.closed = true
	close(p.send)
}
