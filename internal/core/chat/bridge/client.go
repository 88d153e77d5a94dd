// Package bridge implements chat.Client against a sidecar gateway that owns
// the chat protocol. Requests are JSON over HTTP; events arrive as
// Server-Sent Events on /v1/events.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/neilberkman/groupsum/internal/core/chat"
	"github.com/neilberkman/groupsum/internal/core/clock"
	"github.com/neilberkman/groupsum/internal/core/logging"
	"github.com/neilberkman/groupsum/internal/core/retry"
)

type Config struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration // per JSON call; the event stream has none
	Reconnect      retry.Policy
	HTTPClient     *http.Client
	Clock          clock.Clock
	Logger         *slog.Logger
}

// StatusError is a non-2xx answer from the gateway.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bridge: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
	events chan chat.Event

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ chat.Client = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.Reconnect.MaxAttempts == 0 && cfg.Reconnect.Delay == nil {
		cfg.Reconnect = retry.Exponential(8, time.Second, 30*time.Second)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		http:   cfg.HTTPClient,
		logger: logging.OrDiscard(cfg.Logger).With("component", "bridge"),
		events: make(chan chat.Event, 64),
	}
}

// Factory returns a chat.Factory producing a new Client per call.
func Factory(cfg Config) chat.Factory {
	return func(context.Context) (chat.Client, error) {
		if cfg.BaseURL == "" {
			return nil, errors.New("bridge: base URL is empty")
		}
		if _, err := url.Parse(cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("bridge: invalid base URL: %w", err)
		}
		return New(cfg), nil
	}
}

func (c *Client) Events() <-chan chat.Event { return c.events }

// Start asks the gateway to bring the session up and begins streaming
// events. The stream reconnects with the configured policy.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, "/v1/start", nil, nil); err != nil {
		return err
	}

	sctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.stream(sctx, c.done)
	return nil
}

// Stop ends the event stream and asks the gateway to stop the session. The
// Events channel is closed once the stream has exited.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return c.do(ctx, http.MethodPost, "/v1/stop", nil, nil)
}

func (c *Client) Self(ctx context.Context) (chat.Contact, error) {
	var me chat.Contact
	err := c.do(ctx, http.MethodGet, "/v1/self", nil, &me)
	return me, err
}

func (c *Client) Rooms(ctx context.Context) ([]chat.Room, error) {
	var rooms []chat.Room
	err := c.do(ctx, http.MethodGet, "/v1/rooms", nil, &rooms)
	return rooms, err
}

func (c *Client) Room(ctx context.Context, id string) (chat.Room, error) {
	var room chat.Room
	err := c.do(ctx, http.MethodGet, "/v1/rooms/"+url.PathEscape(id), nil, &room)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return chat.Room{}, fmt.Errorf("%w: %s", chat.ErrRoomNotFound, id)
	}
	return room, err
}

func (c *Client) Send(ctx context.Context, roomID, text string) error {
	body := struct {
		Text string `json:"text"`
	}{text}
	return c.do(ctx, http.MethodPost, "/v1/rooms/"+url.PathEscape(roomID)+"/messages", body, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("bridge: marshaling request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("bridge: creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bridge: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("bridge: decoding %s: %w", path, err)
	}
	return nil
}

func (c *Client) stream(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer close(c.events)

	attempt := 0
	for {
		err := c.readEvents(ctx, func() { attempt = 0 })
		if ctx.Err() != nil {
			return
		}
		attempt++
		if !c.cfg.Reconnect.Allow(attempt) {
			c.logger.Error("event stream lost, giving up", "attempts", attempt-1, "error", err)
			c.publish(ctx, chat.ClientError{Message: fmt.Sprintf("event stream lost: %v", err)})
			return
		}
		wait := c.cfg.Reconnect.Wait(attempt + 1)
		c.logger.Warn("event stream interrupted, reconnecting", "attempt", attempt, "wait", wait, "error", err)
		if clock.Sleep(ctx, c.cfg.Clock, wait) != nil {
			return
		}
	}
}

// readEvents consumes one connection of the event stream. connected runs
// once the gateway accepted the subscription.
func (c *Client) readEvents(ctx context.Context, connected func()) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: http.MethodGet, Path: "/v1/events", StatusCode: resp.StatusCode, Body: string(b)}
	}
	connected()

	sc := newSSEScanner(resp.Body)
	for sc.Next() {
		raw := sc.Event()
		ev, err := decodeEvent(raw.Type, []byte(raw.Data))
		if err != nil {
			c.logger.Warn("dropping undecodable event", "type", raw.Type, "error", err)
			continue
		}
		if ev == nil {
			c.logger.Debug("ignoring event", "type", raw.Type)
			continue
		}
		if !c.publish(ctx, ev) {
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

func (c *Client) publish(ctx context.Context, ev chat.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// decodeEvent maps a wire event to its variant. Unknown types yield nil.
func decodeEvent(typ string, data []byte) (chat.Event, error) {
	switch typ {
	case "scan":
		return decodeAs[chat.Scan](data)
	case "login":
		return decodeAs[chat.Login](data)
	case "logout":
		return decodeAs[chat.Logout](data)
	case "message":
		var m chat.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return chat.MessageReceived{Message: m}, nil
	case "room-join":
		return decodeAs[chat.RoomJoined](data)
	case "room-leave":
		return decodeAs[chat.RoomLeft](data)
	case "room-topic":
		return decodeAs[chat.RoomTopicChanged](data)
	case "error":
		return decodeAs[chat.ClientError](data)
	}
	return nil, nil
}

func decodeAs[T chat.Event](data []byte) (chat.Event, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return e, nil
}
