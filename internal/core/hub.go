package core

import (
	"context"
	"strings"
	"time"

	"github.com/roomcast/roomcast/internal/store"
	"github.com/rs/zerolog"
)

const defaultHistoryLimit = 50

// Hub coordinates rooms and clients. All room and client state is owned by
// the Run goroutine; transports interact with it only through channels.
type Hub struct {
	store        store.Store
	log          zerolog.Logger
	historyLimit int

	registerCh   chan *Client
	unregisterCh chan *Client
	commands     chan clientCommand

	rooms   map[string]*Room
	clients map[*Client]struct{}
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

// NewHub creates a new chat hub. The store may be nil, in which case messages
// are not persisted and no history is delivered. historyLimit <= 0 selects
// the default.
func NewHub(st store.Store, logger *zerolog.Logger, historyLimit int) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Hub{
		store:        st,
		log:          logger.With().Str("component", "hub").Logger(),
		historyLimit: historyLimit,
		registerCh:   make(chan *Client),
		unregisterCh: make(chan *Client),
		commands:     make(chan clientCommand, 64),
		rooms:        make(map[string]*Room),
		clients:      make(map[*Client]struct{}),
	}
}

// RegisterClient hands a client over to the hub. The hub starts consuming the
// client's Commands channel and owns its Events channel until unregistration.
func (h *Hub) RegisterClient(c *Client) {
	h.registerCh <- c
}

// UnregisterClient removes a client from all rooms and closes its Events
// channel. Safe to call once per registered client.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregisterCh <- c
}

// Run processes hub commands until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.registerCh:
			h.clients[c] = struct{}{}
			go h.pump(ctx, c)
		case c := <-h.unregisterCh:
			h.disconnect(c)
		case cc := <-h.commands:
			if _, ok := h.clients[cc.client]; !ok {
				continue
			}
			h.dispatch(ctx, cc.client, cc.cmd)
		case <-ctx.Done():
			return
		}
	}
}

// pump forwards a client's commands into the hub loop. It exits when the
// client is unregistered or the hub stops.
func (h *Hub) pump(ctx context.Context, c *Client) {
	for {
		select {
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			select {
			case h.commands <- clientCommand{client: c, cmd: cmd}:
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandJoinRoom:
		h.handleJoin(ctx, c, cmd.Room)
	case CommandLeaveRoom:
		h.handleLeave(c, cmd.Room)
	case CommandSendRoomMessage:
		h.handleSend(ctx, c, cmd)
	}
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, roomName string) {
	if roomName == "" {
		h.sendError(c, coreError(ErrCodeBadRequest, "room is required"))
		return
	}
	if _, joined := c.Rooms[roomName]; joined {
		h.sendError(c, coreError(ErrCodeAlreadyJoined, "already joined "+roomName))
		return
	}

	room, ok := h.rooms[roomName]
	if !ok {
		room = NewRoom(roomName)
		h.rooms[roomName] = room
	}

	// Rooms are created in the store on first reference.
	if h.store != nil && room.StoreID == 0 {
		stored, err := h.store.EnsureRoom(ctx, roomName)
		if err != nil {
			h.log.Error().Err(err).Str("room", roomName).Msg("ensure room")
		} else {
			room.StoreID = stored.ID
		}
	}

	room.AddClient(c)
	c.Rooms[roomName] = struct{}{}

	room.Broadcast(&Event{
		Kind: EventUserJoined,
		Room: roomName,
		User: c.Name,
	})

	h.sendHistory(ctx, c, room)

	h.log.Debug().Str("room", roomName).Str("user", c.Name).Int("size", room.Size()).Msg("client joined room")
}

func (h *Hub) handleLeave(c *Client, roomName string) {
	room, ok := h.rooms[roomName]
	if !ok {
		h.sendError(c, coreError(ErrCodeRoomNotFound, "room not found: "+roomName))
		return
	}
	if _, joined := c.Rooms[roomName]; !joined {
		h.sendError(c, coreError(ErrCodeNotInRoom, "not in room "+roomName))
		return
	}

	h.removeFromRoom(c, room)
	h.log.Debug().Str("room", roomName).Str("user", c.Name).Msg("client left room")
}

func (h *Hub) handleSend(ctx context.Context, c *Client, cmd *Command) {
	room, ok := h.rooms[cmd.Room]
	if !ok {
		h.sendError(c, coreError(ErrCodeNotInRoom, "not in room "+cmd.Room))
		return
	}
	if _, joined := c.Rooms[cmd.Room]; !joined {
		h.sendError(c, coreError(ErrCodeNotInRoom, "not in room "+cmd.Room))
		return
	}

	text := strings.TrimSpace(cmd.Message.Text)
	if text == "" {
		h.sendError(c, coreError(ErrCodeBadRequest, "message text is required"))
		return
	}

	msg := Message{
		Room:      cmd.Room,
		From:      c.Name,
		Text:      text,
		CreatedAt: cmd.Message.CreatedAt,
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	// Persist exactly once, before fan-out. A storage failure is logged but
	// does not stop delivery to connected peers.
	if h.store != nil && room.StoreID != 0 {
		stored := &store.Message{
			RoomID:    room.StoreID,
			Sender:    msg.From,
			Body:      msg.Text,
			CreatedAt: msg.CreatedAt,
		}
		if err := h.store.SaveMessage(ctx, stored); err != nil {
			h.log.Error().Err(err).Str("room", cmd.Room).Msg("save message")
		} else {
			msg.ID = stored.ID
		}
	}

	room.BroadcastExcept(c, &Event{
		Kind:    EventRoomMessage,
		Room:    cmd.Room,
		User:    c.Name,
		Message: msg,
	})
}

// disconnect removes the client from every room it joined and closes its
// Events channel. Other clients only observe a user_left event.
func (h *Hub) disconnect(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	for roomName := range c.Rooms {
		if room, ok := h.rooms[roomName]; ok {
			h.removeFromRoom(c, room)
		}
	}

	delete(h.clients, c)
	close(c.done)
	close(c.Events)

	h.log.Debug().Str("client_id", c.ID).Str("user", c.Name).Msg("client disconnected")
}

func (h *Hub) removeFromRoom(c *Client, room *Room) {
	room.RemoveClient(c)
	delete(c.Rooms, room.Name)

	room.Broadcast(&Event{
		Kind: EventUserLeft,
		Room: room.Name,
		User: c.Name,
	})

	if room.Empty() {
		delete(h.rooms, room.Name)
	}
}

func (h *Hub) sendHistory(ctx context.Context, c *Client, room *Room) {
	if h.store == nil || room.StoreID == 0 {
		return
	}

	stored, err := h.store.ListMessages(ctx, room.StoreID, h.historyLimit, nil)
	if err != nil {
		h.log.Error().Err(err).Str("room", room.Name).Msg("list history")
		return
	}

	messages := make([]Message, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, Message{
			ID:        m.ID,
			Room:      room.Name,
			From:      m.Sender,
			Text:      m.Body,
			CreatedAt: m.CreatedAt,
		})
	}

	h.send(c, &Event{
		Kind:     EventHistory,
		Room:     room.Name,
		Messages: messages,
	})
}

func (h *Hub) sendError(c *Client, cerr *CoreError) {
	h.send(c, &Event{Kind: EventError, Error: cerr})
}

func (h *Hub) send(c *Client, event *Event) {
	select {
	case c.Events <- event:
	default:
		// Drop if slow consumer.
	}
}
