package core

import (
	"fmt"
	"time"
)

// timestampLayout renders millisecond ISO-8601 timestamps, which compare
// correctly as strings.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Message is the domain model for a chat message. It is immutable once
// created.
type Message struct {
	ID        string
	Room      string
	SenderID  string // connection id
	Sender    string // display name
	AccountID string // durable account id, may be empty
	Text      string
	CreatedAt time.Time
}

// Timestamp returns CreatedAt in the wire format.
func (m Message) Timestamp() string {
	return m.CreatedAt.UTC().Format(timestampLayout)
}

// newMessageID derives a message id from the timestamp and the sender.
func newMessageID(at time.Time, sender string) string {
	return fmt.Sprintf("msg-%s-%s", at.UTC().Format(timestampLayout), sender)
}
