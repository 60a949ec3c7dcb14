// Package memory provides a process-local MessageStore.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Store keeps records in memory, grouped by room.
type Store struct {
	mu    sync.RWMutex
	rooms map[string][]store.Record
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{rooms: make(map[string][]store.Record)}
}

// Insert appends rec to its room, keeping SentAt order.
func (s *Store) Insert(_ context.Context, rec store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := append(s.rooms[rec.RoomID], rec)
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].SentAt.Before(recs[j].SentAt)
	})
	s.rooms[rec.RoomID] = recs
	return nil
}

// QueryByRoom returns a copy of the room's most recent records.
func (s *Store) QueryByRoom(_ context.Context, roomID string, limit int) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.rooms[roomID]
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	out := make([]store.Record, len(recs))
	copy(out, recs)
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
