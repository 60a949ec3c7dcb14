package core

import "sync"

// HistoryCache buffers recent messages per room in append order. It is
// purely in-memory; durable history lives in the message store.
type HistoryCache struct {
	mu    sync.RWMutex
	limit int
	rooms map[string][]Message
}

// NewHistoryCache creates a cache keeping at most limit messages per room.
// A limit of zero or less keeps everything.
func NewHistoryCache(limit int) *HistoryCache {
	return &HistoryCache{
		limit: limit,
		rooms: make(map[string][]Message),
	}
}

// EnsureRoom creates an empty entry for room if none exists.
func (h *HistoryCache) EnsureRoom(room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = []Message{}
	}
}

// Append adds msg to the room's buffer, evicting the oldest entry when the
// buffer is full. Messages for rooms without an entry are ignored.
func (h *HistoryCache) Append(room string, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs, ok := h.rooms[room]
	if !ok {
		return
	}
	msgs = append(msgs, msg)
	if h.limit > 0 && len(msgs) > h.limit {
		msgs = append([]Message(nil), msgs[len(msgs)-h.limit:]...)
	}
	h.rooms[room] = msgs
}

// Snapshot returns a copy of the room's messages in append order.
func (h *HistoryCache) Snapshot(room string) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Message{}, h.rooms[room]...)
}

// Destroy drops the room's entry.
func (h *HistoryCache) Destroy(room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, room)
}
