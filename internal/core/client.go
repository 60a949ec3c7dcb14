package core

// DefaultClientBuffer is the outbox capacity used by NewClient.
const DefaultClientBuffer = 64

// Client is a chat participant as seen by the core layer: one live
// transport session. The hub closes Events after the client is
// unregistered; the transport never closes it.
type Client struct {
	ID       string
	Name     string // requested display name, may be empty
	Commands chan Command
	Events   chan Event

	gone chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id, name string) *Client {
	return NewClientWithBuffer(id, name, DefaultClientBuffer)
}

// NewClientWithBuffer constructs a client whose outbox holds size events.
func NewClientWithBuffer(id, name string, size int) *Client {
	if size <= 0 {
		size = DefaultClientBuffer
	}
	return &Client{
		ID:       id,
		Name:     name,
		Commands: make(chan Command, 8),
		Events:   make(chan Event, size),
		gone:     make(chan struct{}),
	}
}
