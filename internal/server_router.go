package internal

import "sync"

// Sender delivers an encoded frame to one connection without blocking.
// It returns false when the frame was dropped.
type Sender interface {
	Send(frame []byte) bool
}

// RoomRouter keeps the member set of every live room and the outbound sender
// of every attached connection.
type RoomRouter struct {
	mutex   sync.RWMutex
	rooms   map[string]map[ConnID]struct{}
	senders map[ConnID]Sender
}

func NewRoomRouter() *RoomRouter {
	return &RoomRouter{
		rooms:   make(map[string]map[ConnID]struct{}),
		senders: make(map[ConnID]Sender),
	}
}

// Attach registers the sender used for frames addressed to id.
func (router *RoomRouter) Attach(id ConnID, sender Sender) {
	router.mutex.Lock()
	defer router.mutex.Unlock()
	router.senders[id] = sender
}

// Detach forgets the sender of id and removes id from any room it is still in.
func (router *RoomRouter) Detach(id ConnID) {
	router.mutex.Lock()
	defer router.mutex.Unlock()
	delete(router.senders, id)
	for key, members := range router.rooms {
		if _, ok := members[id]; ok {
			delete(members, id)
			if len(members) == 0 {
				delete(router.rooms, key)
			}
		}
	}
}

// Join adds id to room. Joining twice is a no-op.
func (router *RoomRouter) Join(id ConnID, room string) {
	router.mutex.Lock()
	defer router.mutex.Unlock()
	members, ok := router.rooms[room]
	if !ok {
		members = make(map[ConnID]struct{})
		router.rooms[room] = members
	}
	members[id] = struct{}{}
}

// Leave removes id from room and prunes the room once nobody is left.
func (router *RoomRouter) Leave(id ConnID, room string) {
	router.mutex.Lock()
	defer router.mutex.Unlock()
	members, ok := router.rooms[room]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(router.rooms, room)
	}
}

// Broadcast hands frame to every member of room except the given id and
// returns how many members accepted it. Pass an empty ConnID to reach everyone.
func (router *RoomRouter) Broadcast(room string, frame []byte, except ConnID) int {
	targets := router.snapshot(room, except)
	delivered := 0
	for _, sender := range targets {
		if sender.Send(frame) {
			delivered++
		}
	}
	return delivered
}

// Unicast sends frame to a single connection.
func (router *RoomRouter) Unicast(id ConnID, frame []byte) bool {
	router.mutex.RLock()
	sender, ok := router.senders[id]
	router.mutex.RUnlock()
	if !ok {
		return false
	}
	return sender.Send(frame)
}

// Exists reports whether room currently has members. Used by /exists.
func (router *RoomRouter) Exists(room string) bool {
	router.mutex.RLock()
	defer router.mutex.RUnlock()
	_, ok := router.rooms[room]
	return ok
}

func (router *RoomRouter) RoomCount() int {
	router.mutex.RLock()
	defer router.mutex.RUnlock()
	return len(router.rooms)
}

// snapshot copies the senders of a room so sends happen without the lock held.
func (router *RoomRouter) snapshot(room string, except ConnID) []Sender {
	router.mutex.RLock()
	defer router.mutex.RUnlock()
	members := router.rooms[room]
	targets := make([]Sender, 0, len(members))
	for id := range members {
		if id == except && except != "" {
			continue
		}
		if sender, ok := router.senders[id]; ok {
			targets = append(targets, sender)
		}
	}
	return targets
}
