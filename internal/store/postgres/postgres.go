// Package postgres implements the message store on PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

//go:embed migrations/001_messages.sql
var migrationSQL string

// poolIface is the subset of *pgxpool.Pool the store needs. Every call
// acquires a pooled connection and releases it before returning.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// Store implements store.MessageStore using PostgreSQL.
type Store struct {
	pool poolIface
}

// ConnectAttempts is how many times New pings the database before giving up.
const ConnectAttempts = 5

// New connects to dsn, waiting for the database with exponential backoff.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := NewWithPool(pool)
	if err := s.waitReady(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool poolIface) *Store {
	return &Store{pool: pool}
}

func (s *Store) waitReady(ctx context.Context) error {
	backoff := retry.WithMaxRetries(ConnectAttempts-1, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Migrate creates the messages table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("failed to run database migration: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Insert persists a message record.
func (s *Store) Insert(ctx context.Context, rec store.Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, room_id, sender_id, sender_name, body, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID,
		rec.RoomID,
		rec.SenderID,
		rec.SenderName,
		rec.Body,
		rec.SentAt,
	)
	if err != nil {
		return store.Fail("insert", fmt.Errorf("insert message (id=%s, room=%s): %w", rec.ID, rec.RoomID, err))
	}
	return nil
}

// QueryByRoom returns the most recent messages of a room, oldest first.
func (s *Store) QueryByRoom(ctx context.Context, roomID string, limit int) ([]store.Record, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx,
			`SELECT id, room_id, sender_id, sender_name, body, sent_at FROM (
			   SELECT id, room_id, sender_id, sender_name, body, sent_at
			   FROM messages WHERE room_id = $1 ORDER BY sent_at DESC LIMIT $2
			 ) recent ORDER BY sent_at ASC`,
			roomID, limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, room_id, sender_id, sender_name, body, sent_at
			 FROM messages WHERE room_id = $1 ORDER BY sent_at ASC`,
			roomID)
	}
	if err != nil {
		return nil, store.Fail("query", fmt.Errorf("query messages (room=%s): %w", roomID, err))
	}
	defer rows.Close()

	var records []store.Record
	for rows.Next() {
		var rec store.Record
		if err := rows.Scan(&rec.ID, &rec.RoomID, &rec.SenderID, &rec.SenderName, &rec.Body, &rec.SentAt); err != nil {
			return nil, store.Fail("query", fmt.Errorf("scan message row: %w", err))
		}
		rec.SentAt = rec.SentAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Fail("query", fmt.Errorf("iterate messages: %w", err))
	}
	return records, nil
}
