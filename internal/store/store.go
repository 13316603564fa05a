package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced room or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRoomExists is returned when creating a room whose name is taken.
	ErrRoomExists = errors.New("room already exists")
)

// Room represents a chat room. Rooms are identified by a unique name and are
// created on first reference.
type Room struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Message represents a persisted chat message. Messages are immutable once
// created and ordered within a room by their id.
type Message struct {
	ID        int64
	RoomID    int64
	Sender    string
	Body      string
	CreatedAt time.Time
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom creates a new room. Returns ErrRoomExists if the name is taken.
	CreateRoom(ctx context.Context, name string) (*Room, error)

	// EnsureRoom returns the room with the given name, creating it if needed.
	EnsureRoom(ctx context.Context, name string) (*Room, error)

	// GetRoomByName retrieves a room by name. Returns ErrNotFound if missing.
	GetRoomByName(ctx context.Context, name string) (*Room, error)

	// ListRooms lists all rooms in creation order.
	ListRooms(ctx context.Context) ([]*Room, error)

	// DeleteRoom deletes a room and all of its messages in one transaction.
	// Returns ErrNotFound if the room does not exist.
	DeleteRoom(ctx context.Context, name string) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and fills in its id. Returns ErrNotFound
	// if the referenced room does not exist.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages retrieves messages from a room in chronological order.
	// If beforeID is provided, returns messages older than that id.
	// Limit determines max number of messages to return.
	ListMessages(ctx context.Context, roomID int64, limit int, beforeID *int64) ([]*Message, error)

	// ListMessagesBySender retrieves a single sender's messages from a room
	// in chronological order.
	ListMessagesBySender(ctx context.Context, roomID int64, sender string, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
