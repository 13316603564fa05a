package http

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/roomcast/roomcast/internal/core"
	"github.com/roomcast/roomcast/internal/proto"
)

// inboundToCommand maps a decoded envelope to a hub command. The room comes
// from the connection's URL, not from the payload.
func inboundToCommand(client *core.Client, room string, inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeMsg:
		var msg proto.MsgData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, nil, err
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "text is required"}, nil
		}
		return &core.Command{
			Kind: core.CommandSendRoomMessage,
			Room: room,
			Message: core.Message{
				// ID is set by the hub after the message is saved.
				Room:      room,
				From:      client.Name,
				Text:      msg.Text,
				CreatedAt: time.Now(),
			},
		}, nil, nil
	case proto.InboundTypeLeave:
		return &core.Command{
			Kind: core.CommandLeaveRoom,
			Room: room,
		}, nil, nil
	case proto.InboundTypeHello:
		// A second hello is a protocol violation; the first one is consumed
		// before the read loop starts.
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "hello already received"}, nil
	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRoomMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "message",
			Data: proto.EventMessage{
				ID:   event.Message.ID,
				Room: event.Message.Room,
				User: event.Message.From,
				Text: event.Message.Text,
				TS:   event.Message.CreatedAt.Unix(),
			},
		}
	case core.EventUserJoined:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "user_joined",
			Data: proto.EventUserJoined{
				Room: event.Room,
				User: event.User,
			},
		}
	case core.EventUserLeft:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "user_left",
			Data: proto.EventUserLeft{
				Room: event.Room,
				User: event.User,
			},
		}
	case core.EventHistory:
		messages := make([]proto.EventMessage, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, proto.EventMessage{
				ID:   msg.ID,
				Room: msg.Room,
				User: msg.From,
				Text: msg.Text,
				TS:   msg.CreatedAt.Unix(),
			})
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "history",
			Data: proto.EventHistory{
				Room:     event.Room,
				Messages: messages,
			},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
