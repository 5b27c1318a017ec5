package signaling

// Membership tracks which peers are joined to which room, in join order.
// It is owned by the hub goroutine and is not safe for concurrent use.
type Membership struct {
	rooms map[string][]*Peer
}

func NewMembership() *Membership {
	return &Membership{rooms: make(map[string][]*Peer)}
}

// Join adds p to roomID and returns a snapshot of the other members at the
// moment of joining.
func (m *Membership) Join(roomID string, p *Peer) []*Peer {
	members := m.rooms[roomID]

	existing := make([]*Peer, 0, len(members))
	for _, member := range members {
		if member != p {
			existing = append(existing, member)
		}
	}

	if len(existing) == len(members) {
		m.rooms[roomID] = append(members, p)
	}
	return existing
}

// Leave removes p from roomID and returns the remaining members. The room
// entry is deleted when it becomes empty. Leaving a room p is not in is a
// no-op reported by ok.
func (m *Membership) Leave(roomID string, p *Peer) (remaining []*Peer, ok bool) {
	members, exists := m.rooms[roomID]
	if !exists {
		return nil, false
	}

	idx := -1
	for i, member := range members {
		if member == p {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}

	members = append(members[:idx], members[idx+1:]...)
	if len(members) == 0 {
		delete(m.rooms, roomID)
		return nil, true
	}

	m.rooms[roomID] = members
	remaining = make([]*Peer, len(members))
	copy(remaining, members)
	return remaining, true
}

// MembersOf returns a copy of the room's members.
func (m *Membership) MembersOf(roomID string) []*Peer {
	members := m.rooms[roomID]
	if len(members) == 0 {
		return nil
	}
	out := make([]*Peer, len(members))
	copy(out, members)
	return out
}

// Contains reports whether p is a member of roomID.
func (m *Membership) Contains(roomID string, p *Peer) bool {
	for _, member := range m.rooms[roomID] {
		if member == p {
			return true
		}
	}
	return false
}

// Len returns the number of non-empty rooms.
func (m *Membership) Len() int {
	return len(m.rooms)
}

func peerIDs(peers []*Peer) []string {
	ids := make([]string, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.id)
	}
	return ids
}
