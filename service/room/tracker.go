// Package room tracks which connections belong to which rooms on this relay.
package room

import (
	"sort"
	"strings"
	"sync"
)

// Room is a room label such as "room:42" or "user:7".
type Room string

const (
	conversationPrefix = "room:"
	userPrefix         = "user:"
)

// ForConversation returns the room every member of a conversation joins.
func ForConversation(conversationID string) Room {
	return Room(conversationPrefix + conversationID)
}

// ForUser returns the per-user room used for user-targeted notices.
func ForUser(userID string) Room {
	return Room(userPrefix + userID)
}

// ConversationID returns the conversation id of a conversation room.
func (r Room) ConversationID() (string, bool) {
	s := string(r)
	if !strings.HasPrefix(s, conversationPrefix) {
		return "", false
	}
	return s[len(conversationPrefix):], true
}

// Tracker is the two-way index of connection -> rooms and room -> connections.
// The zero value is not usable; create one with NewTracker.
type Tracker struct {
	mu      sync.RWMutex
	byConn  map[string]map[Room]struct{}
	members map[Room]map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{
		byConn:  make(map[string]map[Room]struct{}),
		members: make(map[Room]map[string]struct{}),
	}
}

// Join adds connID to room. It reports whether membership changed.
func (t *Tracker) Join(connID string, room Room) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rooms, ok := t.byConn[connID]
	if !ok {
		rooms = make(map[Room]struct{})
		t.byConn[connID] = rooms
	}
	if _, in := rooms[room]; in {
		return false
	}
	rooms[room] = struct{}{}

	m, ok := t.members[room]
	if !ok {
		m = make(map[string]struct{})
		t.members[room] = m
	}
	m[connID] = struct{}{}
	return true
}

// Leave removes connID from room. Leaving a room not held is a no-op.
func (t *Tracker) Leave(connID string, room Room) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leaveLocked(connID, room)
}

func (t *Tracker) leaveLocked(connID string, room Room) bool {
	rooms, ok := t.byConn[connID]
	if !ok {
		return false
	}
	if _, in := rooms[room]; !in {
		return false
	}
	delete(rooms, room)
	if len(rooms) == 0 {
		delete(t.byConn, connID)
	}
	if m, ok := t.members[room]; ok {
		delete(m, connID)
		if len(m) == 0 {
			delete(t.members, room)
		}
	}
	return true
}

// LeaveAll drops every membership of connID and returns the rooms it held.
func (t *Tracker) LeaveAll(connID string) []Room {
	t.mu.Lock()
	defer t.mu.Unlock()

	held := sortedRooms(t.byConn[connID])
	for _, r := range held {
		t.leaveLocked(connID, r)
	}
	return held
}

// Rooms returns a sorted snapshot of connID's rooms.
func (t *Tracker) Rooms(connID string) []Room {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedRooms(t.byConn[connID])
}

// Members returns a sorted snapshot of the connections in room.
func (t *Tracker) Members(room Room) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m := t.members[room]
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (t *Tracker) Has(connID string, room Room) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byConn[connID][room]
	return ok
}

// RoomCount is the number of non-empty rooms.
func (t *Tracker) RoomCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.members)
}

func sortedRooms(set map[Room]struct{}) []Room {
	out := make([]Room, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
