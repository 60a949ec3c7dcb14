package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// sentAtLayout is fixed-width so that text ordering matches time ordering.
const sentAtLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements store.MessageStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the SQLite database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup opens a SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory:
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate applies the embedded schema. It is idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Insert persists a message record.
func (s *SQLiteStore) Insert(ctx context.Context, rec store.Record) error {
	query := `
		INSERT INTO messages (id, room_id, sender_id, sender_name, body, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.RoomID,
		rec.SenderID,
		rec.SenderName,
		rec.Body,
		rec.SentAt.UTC().Format(sentAtLayout),
	)
	if err != nil {
		return store.Fail("insert", fmt.Errorf("insert message: %w", err))
	}
	return nil
}

// QueryByRoom returns the most recent messages of a room, oldest first.
func (s *SQLiteStore) QueryByRoom(ctx context.Context, roomID string, limit int) ([]store.Record, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query := `
		SELECT id, room_id, sender_id, sender_name, body, sent_at
		FROM (
			SELECT id, room_id, sender_id, sender_name, body, sent_at
			FROM messages
			WHERE room_id = ?
			ORDER BY sent_at DESC
			LIMIT ?
		)
		ORDER BY sent_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, store.Fail("query", fmt.Errorf("query messages: %w", err))
	}
	defer rows.Close()

	var records []store.Record
	for rows.Next() {
		var (
			rec    store.Record
			sentAt string
		)
		if err := rows.Scan(&rec.ID, &rec.RoomID, &rec.SenderID, &rec.SenderName, &rec.Body, &sentAt); err != nil {
			return nil, store.Fail("query", fmt.Errorf("scan message: %w", err))
		}
		rec.SentAt, err = time.Parse(sentAtLayout, sentAt)
		if err != nil {
			return nil, store.Fail("query", fmt.Errorf("parse sent_at %q: %w", sentAt, err))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Fail("query", fmt.Errorf("iterate messages: %w", err))
	}

	return records, nil
}
