package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// RoomHandlers exposes read-only room state over REST.
type RoomHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub *core.Hub, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub: hub,
		log: logger,
	}
}

// RoomURI binds the room path parameter.
type RoomURI struct {
	Room string `uri:"room" binding:"required,max=128"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Participants lists the current members of a room.
// GET /api/rooms/:room/participants
func (h *RoomHandlers) Participants(c *gin.Context) {
	var uri RoomURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.log.Debug().Err(err).Msg("invalid room id")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room id"})
		return
	}

	c.JSON(http.StatusOK, proto.ParticipantsList{
		Room:         uri.Room,
		Participants: participantsToProto(h.hub.Participants(uri.Room)),
	})
}

// History returns the durable history of a room, oldest first.
// GET /api/rooms/:room/history
func (h *RoomHandlers) History(c *gin.Context) {
	var uri RoomURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.log.Debug().Err(err).Msg("invalid room id")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room id"})
		return
	}

	msgs := h.hub.RoomHistory(c.Request.Context(), uri.Room)
	c.JSON(http.StatusOK, proto.History{
		Room:     uri.Room,
		Messages: messagesToProto(msgs),
	})
}
