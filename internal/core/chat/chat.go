// Package chat describes the capabilities groupsum needs from the external
// chat session: room lookups, sending a reply, and a stream of typed events.
package chat

import (
	"context"
	"errors"
	"time"
)

// ErrRoomNotFound is returned by Directory.Room for unknown rooms.
var ErrRoomNotFound = errors.New("chat: room not found")

// Room is a snapshot of a group's metadata. Ready is false while the
// session has not finished loading the room's details.
type Room struct {
	ID          string `json:"id"`
	Topic       string `json:"topic"`
	MemberCount int    `json:"member_count"`
	Avatar      string `json:"avatar"`
	Ready       bool   `json:"ready"`
}

type Contact struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is an incoming message as the session reports it. RoomID is
// empty for direct messages.
type Message struct {
	ID           string    `json:"id"`
	RoomID       string    `json:"room_id"`
	SenderID     string    `json:"sender_id"`
	SenderName   string    `json:"sender_name"`
	SenderAlias  string    `json:"sender_alias"` // display name inside the room
	Text         string    `json:"text"`
	Time         time.Time `json:"time"`
	KindCode     int       `json:"type"`
	MentionsSelf bool      `json:"mentions_self"`
}

// Directory reads room metadata.
type Directory interface {
	Rooms(ctx context.Context) ([]Room, error)
	Room(ctx context.Context, id string) (Room, error)
}

// Sender posts text into a room.
type Sender interface {
	Send(ctx context.Context, roomID, text string) error
}

// Client is one session handle. Events is closed after Stop.
type Client interface {
	Directory
	Sender
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Self(ctx context.Context) (Contact, error)
	Events() <-chan Event
}

// Factory builds a fresh, not yet started Client.
type Factory func(ctx context.Context) (Client, error)
