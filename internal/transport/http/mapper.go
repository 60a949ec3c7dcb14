package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// inboundToCommand decodes and validates a frame. A non-nil proto.Error is
// reported to the client and the connection stays open.
func inboundToCommand(inbound proto.Inbound) (core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var data proto.JoinData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		return core.JoinRoom{Room: data.Room, Username: strings.TrimSpace(data.Username)}, nil
	case proto.InboundTypeLeave:
		var data proto.RoomData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		return core.LeaveRoom{Room: data.Room}, nil
	case proto.InboundTypeMessage:
		var data proto.MessageData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		return core.SendMessage{
			Room:      data.Room,
			Text:      data.Message,
			AccountID: data.UserDBID,
			Wallet:    data.SmartWalletAddress,
		}, nil
	case proto.InboundTypeGetParticipants:
		var data proto.RoomData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		return core.GetParticipants{Room: data.Room}, nil
	case proto.InboundTypeGetHistory:
		var data proto.RoomData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		return core.GetHistory{Room: data.Room}, nil
	case proto.InboundTypeUpdateStatus:
		var data proto.StatusData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		return core.UpdateStatus{Status: data.Status}, nil
	case proto.InboundTypePing:
		return core.Ping{}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Message: "unknown message type"}
	}
}

// decode unmarshals data into v and checks its size limits. A missing data
// member decodes as an empty object.
func decode(data json.RawMessage, v any) *proto.Error {
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &proto.Error{Code: core.ErrCodeInvalidMessage, Message: "malformed message data"}
	}
	if err := validate.Struct(v); err != nil {
		return &proto.Error{Code: core.ErrCodeBadRequest, Message: validationMessage(err)}
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid message data"
	}
	fe := verrs[0]
	if fe.Tag() == "max" {
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

func outboundFromEvent(event core.Event) proto.Outbound {
	switch ev := event.(type) {
	case core.Connected:
		return proto.Outbound{
			Type: proto.OutboundTypeConnectionStatus,
			Data: proto.ConnectionStatus{
				Status:     "connected",
				Message:    ev.Message,
				UserID:     ev.UserID,
				ServerTime: ev.ServerTime.UTC().Format(timeLayout),
			},
		}
	case core.JoinSuccess:
		return proto.Outbound{
			Type: proto.OutboundTypeJoinSuccess,
			Data: proto.JoinSuccess{
				Message:      ev.Message,
				RoomID:       ev.Room,
				Participants: participantsToProto(ev.Participants),
				History:      messagesToProto(ev.History),
			},
		}
	case core.UserJoined:
		return proto.Outbound{
			Type: proto.OutboundTypeUserJoined,
			Data: proto.Presence{
				Message:      ev.Message,
				RoomID:       ev.Room,
				UserID:       ev.UserID,
				Username:     ev.Username,
				Participants: participantsToProto(ev.Participants),
			},
		}
	case core.LeaveSuccess:
		return proto.Outbound{
			Type: proto.OutboundTypeLeaveSuccess,
			Data: proto.LeaveSuccess{Message: ev.Message, RoomID: ev.Room},
		}
	case core.UserLeft:
		return proto.Outbound{
			Type: proto.OutboundTypeUserLeft,
			Data: proto.Presence{
				Message:      ev.Message,
				RoomID:       ev.Room,
				UserID:       ev.UserID,
				Username:     ev.Username,
				Participants: participantsToProto(ev.Participants),
			},
		}
	case core.MessageReceived:
		return proto.Outbound{Type: proto.OutboundTypeMessageReceived, Data: messageToProto(ev.Message)}
	case core.MessageSent:
		return proto.Outbound{Type: proto.OutboundTypeMessageSent, Data: messageToProto(ev.Message)}
	case core.ParticipantsList:
		return proto.Outbound{
			Type: proto.OutboundTypeParticipants,
			Data: proto.ParticipantsList{Room: ev.Room, Participants: participantsToProto(ev.Participants)},
		}
	case core.History:
		return proto.Outbound{
			Type: proto.OutboundTypeHistory,
			Data: proto.History{Room: ev.Room, Messages: messagesToProto(ev.Messages)},
		}
	case core.StatusUpdated:
		return proto.Outbound{
			Type: proto.OutboundTypeStatusUpdated,
			Data: proto.StatusUpdated{
				RoomID:       ev.Room,
				UserID:       ev.UserID,
				Username:     ev.Username,
				OldStatus:    string(ev.OldStatus),
				NewStatus:    string(ev.NewStatus),
				Participants: participantsToProto(ev.Participants),
			},
		}
	case core.Pong:
		return proto.Outbound{
			Type: proto.OutboundTypePong,
			Data: proto.Pong{Timestamp: ev.Time.UTC().Format(timeLayout)},
		}
	case core.ErrorEvent:
		if ev.Err == nil {
			return errorOutbound(&proto.Error{Code: "unknown", Message: "unknown error"})
		}
		return errorOutbound(&proto.Error{Code: ev.Err.Code, Message: ev.Err.Message})
	default:
		return errorOutbound(&proto.Error{Code: "unknown", Message: "unknown event"})
	}
}

func errorOutbound(perr *proto.Error) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeError, Data: perr}
}

// participantsToProto converts a participant list. The same list goes to
// every member of a room, so isCurrentUser is always false; clients compare
// ids against connection_status.userId.
func participantsToProto(ps []core.Participant) []proto.Participant {
	return lo.Map(ps, func(p core.Participant, _ int) proto.Participant {
		return proto.Participant{
			ID:     p.ID,
			Name:   p.Name,
			Status: string(p.Status),
		}
	})
}

func messagesToProto(msgs []core.Message) []proto.Message {
	return lo.Map(msgs, func(m core.Message, _ int) proto.Message {
		return messageToProto(m)
	})
}

func messageToProto(m core.Message) proto.Message {
	return proto.Message{
		ID: m.ID,
		Sender: proto.Sender{
			ID:        m.SenderID,
			Name:      m.Sender,
			AccountID: m.AccountID,
		},
		Content:   m.Text,
		Timestamp: m.Timestamp(),
	}
}
