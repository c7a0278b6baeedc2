package internal

import "sync"

// ConnID identifies one accepted websocket for its whole lifetime.
type ConnID string

// Membership is the username and room a connection chose on joinRoom.
type Membership struct {
	Username string
	Room     string
}

// ConnectionRegistry maps live connections to their current membership.
// A connection that never joined has no entry.
type ConnectionRegistry struct {
	mutex   sync.Mutex
	members map[ConnID]Membership
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{members: make(map[ConnID]Membership)}
}

// SetMembership records the membership for id and returns the one it replaced.
func (registry *ConnectionRegistry) SetMembership(id ConnID, username, room string) (Membership, bool) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	previous, existed := registry.members[id]
	registry.members[id] = Membership{Username: username, Room: room}
	return previous, existed
}

func (registry *ConnectionRegistry) Membership(id ConnID) (Membership, bool) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	membership, ok := registry.members[id]
	return membership, ok
}

// Remove drops id and hands back what it was joined to, if anything.
func (registry *ConnectionRegistry) Remove(id ConnID) (Membership, bool) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	membership, ok := registry.members[id]
	if ok {
		delete(registry.members, id)
	}
	return membership, ok
}

// Len reports how many connections currently hold a membership.
func (registry *ConnectionRegistry) Len() int {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return len(registry.members)
}
