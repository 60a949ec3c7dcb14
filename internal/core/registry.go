package core

import (
	"sync"

	"github.com/samber/lo"
)

// Registry maps room ids to their ordered member sets. A room exists only
// while it has members, except between EnsureRoom and the first AddMember
// of the same event.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string][]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string][]string)}
}

// EnsureRoom creates the room if it does not exist.
func (r *Registry) EnsureRoom(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room]; !ok {
		r.rooms[room] = []string{}
	}
}

// AddMember appends conn to the room's members, creating the room if
// needed. Returns true if newly added.
func (r *Registry) AddMember(room, conn string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[room]
	if lo.Contains(members, conn) {
		return false
	}
	r.rooms[room] = append(members, conn)
	return true
}

// RemoveMember deletes conn from the room. It returns true when the room
// has no members left (or never existed); the caller decides whether to
// destroy it.
func (r *Registry) RemoveMember(room, conn string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return true
	}
	members = lo.Without(members, conn)
	r.rooms[room] = members
	return len(members) == 0
}

// DestroyRoom removes the room entirely.
func (r *Registry) DestroyRoom(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, room)
}

// Members returns the room's members in join order; empty if unknown.
func (r *Registry) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.rooms[room]...)
}

// Exists reports whether the room is registered.
func (r *Registry) Exists(room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room]
	return ok
}

// IsMember reports whether conn belongs to the room.
func (r *Registry) IsMember(room, conn string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Contains(r.rooms[room], conn)
}

// Len returns the number of registered rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
