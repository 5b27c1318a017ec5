package signaling

import "github.com/google/uuid"

// Registry maps relay-assigned identifiers to live peers. It is owned by the
// hub goroutine and is not safe for concurrent use.
type Registry struct {
	peers map[string]*Peer
	newID func() string
}

// NewRegistry returns an empty registry that assigns uuid identifiers.
func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[string]*Peer),
		newID: func() string { return uuid.New().String() },
	}
}

// Register binds a fresh identifier to p and returns it. A peer that is
// already registered keeps its identifier.
func (r *Registry) Register(p *Peer) string {
	if p.id != "" && r.peers[p.id] == p {
		return p.id
	}

	id := r.newID()
	for _, taken := r.peers[id]; taken; _, taken = r.peers[id] {
		id = r.newID()
	}

	p.id = id
	r.peers[id] = p
	return id
}

// Resolve looks up a live peer. A miss means the peer is already gone.
func (r *Registry) Resolve(id string) (*Peer, bool) {
	p, ok := r.peers[id]
	return p, ok
}

// Unregister removes p and reports whether it was present.
func (r *Registry) Unregister(p *Peer) bool {
	if p.id == "" || r.peers[p.id] != p {
		return false
	}
	delete(r.peers, p.id)
	return true
}

// Len returns the number of live peers.
func (r *Registry) Len() int {
	return len(r.peers)
}
