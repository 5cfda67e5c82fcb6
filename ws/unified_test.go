package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racehouse/state"
)

type wireMessage struct {
	Type    string            `json:"type"`
	Channel string            `json:"channel"`
	RaceID  string            `json:"raceId"`
	Events  []state.FeedEvent `json:"events"`
	Error   string            `json:"error"`
}

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(3)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func subscribe(t *testing.T, conn *websocket.Conn, channel string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type: "subscribe",
		Data: map[string]interface{}{"channel": channel},
	}))
}

func read(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg wireMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func event(kind, raceID string) state.FeedEvent {
	return state.FeedEvent{Type: kind, RaceID: raceID, Timestamp: time.Now().UTC()}
}

func TestSubscribeReplaysBacklog(t *testing.T) {
	hub, url := startHub(t)
	hub.Publish(event("race_created", "r1"))
	hub.Publish(event("race_created", "r2"))
	hub.Publish(event("race_entry", "r1"))
	hub.Publish(event("race_entry", "r1"))

	// backlog holds the last three events only
	require.Len(t, hub.Recent(), 3)

	conn := dial(t, url)
	subscribe(t, conn, "race:r1")

	msg := read(t, conn)
	assert.Equal(t, "backlog", msg.Type)
	assert.Equal(t, "race:r1", msg.Channel)
	require.Len(t, msg.Events, 2)
	for _, ev := range msg.Events {
		assert.Equal(t, "r1", ev.RaceID)
		assert.Equal(t, "race_entry", ev.Type)
	}
}

func TestLiveEventsFollowSubscriptions(t *testing.T) {
	hub, url := startHub(t)

	all := dial(t, url)
	subscribe(t, all, ChannelRaces)
	require.Equal(t, "backlog", read(t, all).Type)

	one := dial(t, url)
	subscribe(t, one, "race:r2")
	require.Equal(t, "backlog", read(t, one).Type)

	hub.Publish(event("race_resolved", "r1"))
	hub.Publish(event("race_voided", "r2"))

	first := read(t, all)
	second := read(t, all)
	assert.Equal(t, "race_resolved", first.Type)
	assert.Equal(t, "race_voided", second.Type)

	only := read(t, one)
	assert.Equal(t, "race_voided", only.Type)
	assert.Equal(t, "r2", only.RaceID)
}

func TestUnknownChannelIsRejected(t *testing.T) {
	_, url := startHub(t)
	conn := dial(t, url)
	subscribe(t, conn, "lobby")

	msg := read(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "lobby")
}

func TestPublishNeverBlocks(t *testing.T) {
	// no Run loop: the queue fills and further events are dropped
	hub := NewHub(5)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			hub.Publish(event("race_entry", "r1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
	assert.Len(t, hub.Recent(), 5)
}
