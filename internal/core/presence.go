package core

import (
	"sync"

	"github.com/samber/lo"
)

// Status is a connection's availability.
type Status string

const (
	StatusOnline Status = "online"
	StatusAway   Status = "away"
	StatusBusy   Status = "busy"
)

// ParseStatus validates a wire status value.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusOnline, StatusAway, StatusBusy:
		return st, true
	}
	return "", false
}

// Connection is the presence record of one live session.
type Connection struct {
	ID     string
	Name   string
	Status Status
	Rooms  []string // join order
}

// InRoom reports whether the connection has joined room.
func (c Connection) InRoom(room string) bool {
	return lo.Contains(c.Rooms, room)
}

// Presence owns identity, display name, status and joined rooms of every
// live connection. Reads return copies of the latest committed state.
type Presence struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewPresence creates an empty directory.
func NewPresence() *Presence {
	return &Presence{conns: make(map[string]*Connection)}
}

// Create registers a connection with status online and no rooms. An
// existing record with the same id is replaced.
func (p *Presence) Create(id, name string) Connection {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := &Connection{ID: id, Name: name, Status: StatusOnline}
	p.conns[id] = c
	return c.snapshot()
}

// Get returns a copy of the connection record.
func (p *Presence) Get(id string) (Connection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.conns[id]
	if !ok {
		return Connection{}, false
	}
	return c.snapshot(), true
}

// Delete removes the connection record.
func (p *Presence) Delete(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, id)
}

// SetDisplayName renames a connection. Returns false if it is unknown.
func (p *Presence) SetDisplayName(id, name string) bool {
	return p.update(id, func(c *Connection) { c.Name = name })
}

// SetStatus changes a connection's status and returns the previous one.
func (p *Presence) SetStatus(id string, status Status) (Status, bool) {
	var old Status
	ok := p.update(id, func(c *Connection) {
		old = c.Status
		c.Status = status
	})
	return old, ok
}

// AddRoom records that the connection joined room. Idempotent.
func (p *Presence) AddRoom(id, room string) bool {
	return p.update(id, func(c *Connection) {
		if !lo.Contains(c.Rooms, room) {
			c.Rooms = append(c.Rooms, room)
		}
	})
}

// RemoveRoom records that the connection left room. Idempotent.
func (p *Presence) RemoveRoom(id, room string) bool {
	return p.update(id, func(c *Connection) {
		c.Rooms = lo.Without(c.Rooms, room)
	})
}

// Len returns the number of live connections.
func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

func (p *Presence) update(id string, fn func(*Connection)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.conns[id]
	if !ok {
		return false
	}
	fn(c)
	return true
}

func (c *Connection) snapshot() Connection {
	out := *c
	out.Rooms = append([]string(nil), c.Rooms...)
	return out
}
