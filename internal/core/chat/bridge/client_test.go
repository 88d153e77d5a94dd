package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/neilberkman/groupsum/internal/core/chat"
	"github.com/neilberkman/groupsum/internal/core/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateway struct {
	mu      sync.Mutex
	sent    []string
	auth    string
	started int
	stopped int
	stream  string
}

func (g *gateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/start", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.started++
		g.auth = r.Header.Get("Authorization")
		g.mu.Unlock()
	})
	mux.HandleFunc("POST /v1/stop", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.stopped++
		g.mu.Unlock()
	})
	mux.HandleFunc("GET /v1/self", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chat.Contact{ID: "wxid_self", Name: "Bot"})
	})
	mux.HandleFunc("GET /v1/rooms", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]chat.Room{
			{ID: "r1@chatroom", Topic: "Hikers", MemberCount: 12, Ready: true},
			{ID: "r2@chatroom", Topic: "Chess", MemberCount: 4, Ready: true},
		})
	})
	mux.HandleFunc("GET /v1/rooms/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "r1@chatroom" {
			http.Error(w, "no such room", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(chat.Room{ID: "r1@chatroom", Topic: "Hikers", MemberCount: 12, Ready: true})
	})
	mux.HandleFunc("POST /v1/rooms/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Text string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		g.mu.Lock()
		g.sent = append(g.sent, r.PathValue("id")+": "+body.Text)
		g.mu.Unlock()
	})
	mux.HandleFunc("GET /v1/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, g.stream)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	return mux
}

func newTestClient(t *testing.T, g *gateway) *Client {
	t.Helper()
	srv := httptest.NewServer(g.handler())
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Token: "secret", Reconnect: retry.Constant(1, 0)})
}

func TestRooms(t *testing.T) {
	c := newTestClient(t, &gateway{})
	ctx := context.Background()

	rooms, err := c.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "Hikers", rooms[0].Topic)

	room, err := c.Room(ctx, "r1@chatroom")
	require.NoError(t, err)
	assert.Equal(t, 12, room.MemberCount)

	_, err = c.Room(ctx, "missing@chatroom")
	assert.ErrorIs(t, err, chat.ErrRoomNotFound)

	me, err := c.Self(ctx)
	require.NoError(t, err)
	assert.Equal(t, "wxid_self", me.ID)
}

func TestSend(t *testing.T) {
	g := &gateway{}
	c := newTestClient(t, g)

	require.NoError(t, c.Send(context.Background(), "r1@chatroom", "summary failed, try again later"))
	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Equal(t, []string{"r1@chatroom: summary failed, try again later"}, g.sent)
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session not logged in", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Rooms(context.Background())
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Contains(t, se.Body, "not logged in")
}

func TestEventStream(t *testing.T) {
	msg := chat.Message{ID: "m1", RoomID: "r1@chatroom", SenderID: "u1", Text: "hi", KindCode: 7,
		Time: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
	data, _ := json.Marshal(msg)

	g := &gateway{stream: strings.Join([]string{
		": keepalive",
		"",
		"event: login",
		`data: {"user":{"id":"wxid_self","name":"Bot"}}`,
		"",
		"event: message",
		"data: " + string(data),
		"",
		"event: heartbeat",
		"data: {}",
		"",
		"event: room-topic",
		`data: {"room_id":"r1@chatroom","new_topic":"Hikers 2025","old_topic":"Hikers"}`,
		"",
		"",
	}, "\n")}
	c := newTestClient(t, g)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	var got []chat.Event
	for len(got) < 3 {
		select {
		case ev := <-c.Events():
			got = append(got, ev)
		case <-time.After(5 * time.Second):
			t.Fatalf("only received %d events", len(got))
		}
	}

	assert.Equal(t, chat.Login{User: chat.Contact{ID: "wxid_self", Name: "Bot"}}, got[0])
	received, ok := got[1].(chat.MessageReceived)
	require.True(t, ok)
	assert.Equal(t, msg, received.Message)
	assert.Equal(t, "room-topic", chat.Name(got[2]))

	require.NoError(t, c.Stop(ctx))
	_, open := <-c.Events()
	assert.False(t, open, "events channel not closed after Stop")

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Equal(t, 1, g.started)
	assert.Equal(t, 1, g.stopped)
	assert.Equal(t, "Bearer secret", g.auth)
}

func TestFactoryRejectsEmptyURL(t *testing.T) {
	_, err := Factory(Config{})(context.Background())
	assert.Error(t, err)
}

func TestSSEScanner(t *testing.T) {
	in := "event: a\ndata: one\ndata: two\n\n:comment\n\ndata: tail"
	sc := newSSEScanner(strings.NewReader(in))

	require.True(t, sc.Next())
	assert.Equal(t, sseEvent{Type: "a", Data: "one\ntwo"}, sc.Event())

	require.True(t, sc.Next())
	assert.Equal(t, sseEvent{Data: "tail"}, sc.Event())

	assert.False(t, sc.Next())
	assert.NoError(t, sc.Err())
}
