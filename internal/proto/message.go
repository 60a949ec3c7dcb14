package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	InboundTypeJoin            = "join"
	InboundTypeLeave           = "leave"
	InboundTypeMessage         = "message"
	InboundTypeGetParticipants = "get_participants"
	InboundTypeGetHistory      = "get_history"
	InboundTypeUpdateStatus    = "update_status"
	InboundTypePing            = "ping"

	OutboundTypeConnectionStatus = "connection_status"
	OutboundTypeJoinSuccess      = "join_success"
	OutboundTypeUserJoined       = "user_joined"
	OutboundTypeLeaveSuccess     = "leave_success"
	OutboundTypeUserLeft         = "user_left"
	OutboundTypeMessageReceived  = "message_received"
	OutboundTypeMessageSent      = "message_sent"
	OutboundTypeParticipants     = "participants_list"
	OutboundTypeHistory          = "history"
	OutboundTypeStatusUpdated    = "status_updated"
	OutboundTypePong             = "pong"
	OutboundTypeError            = "error"
)

// Payload tags bound field sizes only. Required fields are checked by the
// hub.

// JoinData requests to join a room, optionally renaming the connection.
type JoinData struct {
	Room     string `json:"room" validate:"max=128"`
	Username string `json:"username,omitempty" validate:"omitempty,max=64"`
}

// RoomData names a room for leave, get_participants and get_history.
type RoomData struct {
	Room string `json:"room" validate:"max=128"`
}

// MessageData is a chat message from the client.
type MessageData struct {
	Room               string `json:"room" validate:"max=128"`
	Message            string `json:"message" validate:"max=4096"`
	UserDBID           string `json:"userDbId,omitempty" validate:"omitempty,max=128"`
	SmartWalletAddress string `json:"smart_wallet_address,omitempty" validate:"omitempty,max=128"`
}

// StatusData changes the connection's status.
type StatusData struct {
	Status string `json:"status" validate:"max=16"`
}

// Participant is one room member.
type Participant struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	IsCurrentUser bool   `json:"isCurrentUser"`
}

// Sender identifies who wrote a message.
type Sender struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AccountID string `json:"accountId,omitempty"`
}

// Message is a chat message as seen by clients.
type Message struct {
	ID        string `json:"id"`
	Sender    Sender `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// ConnectionStatus greets a new connection.
type ConnectionStatus struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	UserID     string `json:"userId"`
	ServerTime string `json:"serverTime"`
}

// JoinSuccess confirms a join.
type JoinSuccess struct {
	Message      string        `json:"message"`
	RoomID       string        `json:"roomId"`
	Participants []Participant `json:"participants"`
	History      []Message     `json:"history"`
}

// Presence announces a join or a leave to the other members.
type Presence struct {
	Message      string        `json:"message"`
	RoomID       string        `json:"roomId"`
	UserID       string        `json:"userId"`
	Username     string        `json:"username"`
	Participants []Participant `json:"participants"`
}

// LeaveSuccess confirms a leave.
type LeaveSuccess struct {
	Message string `json:"message"`
	RoomID  string `json:"roomId"`
}

// ParticipantsList answers get_participants.
type ParticipantsList struct {
	Room         string        `json:"room"`
	Participants []Participant `json:"participants"`
}

// History answers get_history.
type History struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}

// StatusUpdated announces a status change.
type StatusUpdated struct {
	RoomID       string        `json:"roomId"`
	UserID       string        `json:"userId"`
	Username     string        `json:"username"`
	OldStatus    string        `json:"oldStatus"`
	NewStatus    string        `json:"newStatus"`
	Participants []Participant `json:"participants"`
}

// Pong answers ping.
type Pong struct {
	Timestamp string `json:"timestamp"`
}

// Error describes a protocol-level error response.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
