package core

import "time"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventConnected acknowledges a new connection.
	EventConnected EventKind = iota
	// EventJoinSuccess confirms a join to the joining client.
	EventJoinSuccess
	// EventUserJoined notifies other members about a join.
	EventUserJoined
	// EventLeaveSuccess confirms a leave to the leaving client.
	EventLeaveSuccess
	// EventUserLeft notifies remaining members about a leave or disconnect.
	EventUserLeft
	// EventMessageReceived delivers a chat message to other members.
	EventMessageReceived
	// EventMessageSent confirms a chat message to its sender.
	EventMessageSent
	// EventParticipants answers a participants request.
	EventParticipants
	// EventHistory answers a history request.
	EventHistory
	// EventStatusUpdated notifies rooms about a status change.
	EventStatusUpdated
	// EventPong answers a ping.
	EventPong
	// EventError notifies a client about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event interface {
	Kind() EventKind
}

// Participant is one member of a room as shown to clients.
type Participant struct {
	ID     string
	Name   string
	Status Status
}

// Connected acknowledges a connection.
type Connected struct {
	UserID     string
	Message    string
	ServerTime time.Time
}

// JoinSuccess is the private join confirmation.
type JoinSuccess struct {
	Message      string
	Room         string
	Participants []Participant
	History      []Message
}

// UserJoined is broadcast to the other members of a room.
type UserJoined struct {
	Message      string
	Room         string
	UserID       string
	Username     string
	Participants []Participant
}

// LeaveSuccess is the private leave confirmation.
type LeaveSuccess struct {
	Message string
	Room    string
}

// UserLeft is broadcast to the remaining members of a room.
type UserLeft struct {
	Message      string
	Room         string
	UserID       string
	Username     string
	Participants []Participant
}

// MessageReceived carries a message to the other members of its room.
type MessageReceived struct {
	Message Message
}

// MessageSent echoes an accepted message to its sender.
type MessageSent struct {
	Message Message
}

// ParticipantsList answers GetParticipants.
type ParticipantsList struct {
	Room         string
	Participants []Participant
}

// History answers GetHistory.
type History struct {
	Room     string
	Messages []Message
}

// StatusUpdated is broadcast to every room of the connection.
type StatusUpdated struct {
	Room         string
	UserID       string
	Username     string
	OldStatus    Status
	NewStatus    Status
	Participants []Participant
}

// Pong answers Ping.
type Pong struct {
	Time time.Time
}

// ErrorEvent reports a CoreError to the offending client.
type ErrorEvent struct {
	Err *CoreError
}

func (Connected) Kind() EventKind        { return EventConnected }
func (JoinSuccess) Kind() EventKind      { return EventJoinSuccess }
func (UserJoined) Kind() EventKind       { return EventUserJoined }
func (LeaveSuccess) Kind() EventKind     { return EventLeaveSuccess }
func (UserLeft) Kind() EventKind         { return EventUserLeft }
func (MessageReceived) Kind() EventKind  { return EventMessageReceived }
func (MessageSent) Kind() EventKind      { return EventMessageSent }
func (ParticipantsList) Kind() EventKind { return EventParticipants }
func (History) Kind() EventKind          { return EventHistory }
func (StatusUpdated) Kind() EventKind    { return EventStatusUpdated }
func (Pong) Kind() EventKind             { return EventPong }
func (ErrorEvent) Kind() EventKind       { return EventError }
