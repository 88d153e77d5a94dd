// Package chattest provides an in-memory chat.Client for tests.
package chattest

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/neilberkman/groupsum/internal/core/chat"
)

// Sent is one message passed to Send.
type Sent struct {
	RoomID string
	Text   string
}

// Client is a scriptable chat.Client. The zero value is not usable; call New.
type Client struct {
	mu       sync.Mutex
	self     chat.Contact
	rooms    map[string]chat.Room
	sent     []Sent
	events   chan chat.Event
	started  int
	stopped  bool
	startErr error
	sendErr  error
	roomErr  error
}

var _ chat.Client = (*Client)(nil)

func New(self chat.Contact, rooms ...chat.Room) *Client {
	c := &Client{
		self:   self,
		rooms:  make(map[string]chat.Room),
		events: make(chan chat.Event, 64),
	}
	for _, r := range rooms {
		c.rooms[r.ID] = r
	}
	return c
}

// SetRoom adds or replaces a room.
func (c *Client) SetRoom(r chat.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[r.ID] = r
}

// FailStart makes Start return err.
func (c *Client) FailStart(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startErr = err
}

// FailSend makes Send return err.
func (c *Client) FailSend(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// FailRooms makes Rooms and Room return err.
func (c *Client) FailRooms(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomErr = err
}

// Emit queues an event as if the session reported it.
func (c *Client) Emit(ev chat.Event) { c.events <- ev }

// Sent returns everything sent so far.
func (c *Client) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.sent)
}

// Started reports how many times Start succeeded.
func (c *Client) Started() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *Client) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.started++
	return nil
}

func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopped {
		c.stopped = true
		close(c.events)
	}
	return nil
}

func (c *Client) Self(ctx context.Context) (chat.Contact, error) {
	return c.self, nil
}

func (c *Client) Events() <-chan chat.Event { return c.events }

func (c *Client) Rooms(ctx context.Context) ([]chat.Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.roomErr != nil {
		return nil, c.roomErr
	}
	out := make([]chat.Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b chat.Room) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (c *Client) Room(ctx context.Context, id string) (chat.Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.roomErr != nil {
		return chat.Room{}, c.roomErr
	}
	r, ok := c.rooms[id]
	if !ok {
		return chat.Room{}, chat.ErrRoomNotFound
	}
	return r, nil
}

func (c *Client) Send(ctx context.Context, roomID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.stopped {
		return errors.New("chattest: client stopped")
	}
	c.sent = append(c.sent, Sent{RoomID: roomID, Text: text})
	return nil
}
