// Package badger implements the message store on an embedded BadgerDB.
package badger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Store implements store.MessageStore on BadgerDB.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a database in dir. An empty dir runs in memory.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return New(db), nil
}

// New wraps an open database. The caller keeps ownership of db only if it
// never calls Close on the returned store.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// roomPrefix hex-encodes the room id so that no room prefix can match
// another room's keys.
func roomPrefix(roomID string) string {
	return "msg:" + hex.EncodeToString([]byte(roomID)) + ":"
}

// Insert persists rec under "msg:{room}:{timestamp_padded}:{id}".
// The 19-digit zero padding keeps keys in chronological order and the id
// keeps two messages in the same nanosecond apart.
func (s *Store) Insert(_ context.Context, rec store.Record) error {
	key := fmt.Sprintf("%s%019d:%s", roomPrefix(rec.RoomID), rec.SentAt.UnixNano(), rec.ID)
	value, err := json.Marshal(rec)
	if err != nil {
		return store.Fail("insert", fmt.Errorf("encode message: %w", err))
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return store.Fail("insert", fmt.Errorf("write message: %w", err))
	}
	return nil
}

// QueryByRoom scans the room prefix newest first, stops at limit and returns
// the collected records oldest first.
func (s *Store) QueryByRoom(_ context.Context, roomID string, limit int) ([]store.Record, error) {
	prefix := []byte(roomPrefix(roomID))
	var records []store.Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// '~' sorts after every digit, so this lands on the newest key.
		for it.Seek(append(prefix, '~')); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(records) == limit {
				break
			}
			var rec store.Record
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, store.Fail("query", fmt.Errorf("scan messages (room=%s): %w", roomID, err))
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}
