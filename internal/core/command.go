package core

// Command represents an action requested by a client. The concrete types
// below are the only implementations.
type Command interface {
	command()
}

// JoinRoom subscribes the client to a room, optionally renaming it.
type JoinRoom struct {
	Room     string
	Username string
}

// LeaveRoom unsubscribes the client from a room.
type LeaveRoom struct {
	Room string
}

// SendMessage delivers a chat message to room participants.
type SendMessage struct {
	Room      string
	Text      string
	AccountID string // durable sender id supplied by the client
	Wallet    string // accepted for compatibility, not persisted
}

// GetParticipants asks for a room's participant list.
type GetParticipants struct {
	Room string
}

// GetHistory asks for a room's durable history.
type GetHistory struct {
	Room string
}

// UpdateStatus changes the client's status.
type UpdateStatus struct {
	Status string
}

// Ping asks for a pong.
type Ping struct{}

func (JoinRoom) command()        {}
func (LeaveRoom) command()       {}
func (SendMessage) command()     {}
func (GetParticipants) command() {}
func (GetHistory) command()      {}
func (UpdateStatus) command()    {}
func (Ping) command()            {}
