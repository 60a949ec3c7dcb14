//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStorage is matched by every error a MessageStore returns.
var ErrStorage = errors.New("storage error")

// Record is a persisted chat message.
type Record struct {
	ID         string
	RoomID     string
	SenderID   string // durable account id, not the connection id
	SenderName string
	Body       string
	SentAt     time.Time
}

// MessageStore handles message persistence.
type MessageStore interface {
	// Insert persists a record.
	Insert(ctx context.Context, rec Record) error

	// QueryByRoom returns records of a room ordered by SentAt ascending.
	// When limit > 0 only the most recent limit records are returned.
	QueryByRoom(ctx context.Context, roomID string, limit int) ([]Record, error)

	// Close releases the underlying engine.
	Close() error
}

// StorageError describes a failed store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports ErrStorage as a match so callers need not know the concrete type.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// Fail wraps err as a StorageError for op. A nil err stays nil and errors
// that already are StorageErrors are returned untouched.
func Fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
