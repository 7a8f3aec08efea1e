// Package rooms tracks the optional per-connection room membership used to
// scope message delivery. A connection belongs to at most one room at a time.
package rooms

import "sync"

// Tracker maps connections to rooms and rooms to their member sets. Membership
// is routing state only; it is never exposed as registry data.
type Tracker struct {
	mu      sync.Mutex
	byConn  map[string]string
	members map[string]map[string]struct{}
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byConn:  make(map[string]string),
		members: make(map[string]map[string]struct{}),
	}
}

// Join adds the connection to the room. A connection already in a different
// room is removed from it first, so a connection can never appear in two
// rooms at once. It returns the room left, if any.
func (t *Tracker) Join(connectionID, roomID string) (left string, moved bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.byConn[connectionID]; ok {
		if current == roomID {
			return "", false
		}
		t.removeLocked(connectionID, current)
		left, moved = current, true
	}

	if _, ok := t.members[roomID]; !ok {
		t.members[roomID] = make(map[string]struct{})
	}
	t.members[roomID][connectionID] = struct{}{}
	t.byConn[connectionID] = roomID
	return left, moved
}

// Leave removes the connection from whatever room it currently occupies.
// It is a no-op when the connection is in no room.
func (t *Tracker) Leave(connectionID string) (roomID string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	roomID, ok = t.byConn[connectionID]
	if !ok {
		return "", false
	}
	t.removeLocked(connectionID, roomID)
	return roomID, true
}

// MembersOf returns the connection ids currently in the room.
func (t *Tracker) MembersOf(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.members[roomID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// RoomOf returns the room the connection is currently in, if any.
func (t *Tracker) RoomOf(connectionID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	roomID, ok := t.byConn[connectionID]
	return roomID, ok
}

func (t *Tracker) removeLocked(connectionID, roomID string) {
	delete(t.byConn, connectionID)
	if set, ok := t.members[roomID]; ok {
		delete(set, connectionID)
		if len(set) == 0 {
			delete(t.members, roomID)
		}
	}
}
