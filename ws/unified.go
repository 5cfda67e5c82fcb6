package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"racehouse/config"
	"racehouse/state"
)

const (
	// ChannelRaces carries every race event; "race:<id>" carries one race.
	ChannelRaces      = "races"
	raceChannelPrefix = "race:"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ClientConnection represents a connected client with their subscriptions
type ClientConnection struct {
	ID            string
	Conn          *websocket.Conn
	Subscriptions map[string]bool // races, race:<id>
	mu            sync.RWMutex
	Send          chan []byte
}

// ClientMessage is a message from client
type ClientMessage struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// Hub fans race feed events out to websocket subscribers and keeps a short
// backlog for clients that subscribe late.
type Hub struct {
	clients      map[*ClientConnection]bool
	clientsMutex sync.RWMutex

	broadcast  chan state.FeedEvent
	register   chan *ClientConnection
	unregister chan *ClientConnection

	feed     *state.FeedState
	idCount  int64
	stopOnce sync.Once
	done     chan struct{}
}

func NewHub(backlog int) *Hub {
	return &Hub{
		clients:    make(map[*ClientConnection]bool),
		broadcast:  make(chan state.FeedEvent, 100),
		register:   make(chan *ClientConnection),
		unregister: make(chan *ClientConnection),
		feed:       state.NewFeedState(backlog),
		done:       make(chan struct{}),
	}
}

// Run is the central message dispatcher. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	log.Println("🚀 Race feed hub started")
	defer h.stopOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			h.clientsMutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.clientsMutex.Unlock()
			log.Println("🔌 Race feed hub stopped")
			return

		case client := <-h.register:
			h.clientsMutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.clientsMutex.Unlock()
			log.Printf("✅ Client registered: %s (Total: %d)", client.ID, total)

		case client := <-h.unregister:
			h.clientsMutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			total := len(h.clients)
			h.clientsMutex.Unlock()
			log.Printf("👋 Client unregistered: %s (Total: %d)", client.ID, total)

		case ev := <-h.broadcast:
			h.broadcastEvent(ev)
		}
	}
}

// Publish records ev in the backlog and queues it for subscribers. It never
// blocks; when the queue is full the live broadcast is dropped.
func (h *Hub) Publish(ev state.FeedEvent) {
	h.feed.Add(ev)
	select {
	case h.broadcast <- ev:
	default:
		log.Printf("⚠️  Race feed queue full, dropping %s for race %s", ev.Type, ev.RaceID)
	}
}

// Recent returns the backlog, oldest first.
func (h *Hub) Recent() []state.FeedEvent {
	return h.feed.Recent()
}

func (h *Hub) ClientCount() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

func channelsFor(ev state.FeedEvent) []string {
	return []string{ChannelRaces, raceChannelPrefix + ev.RaceID}
}

// broadcastEvent sends ev to all clients subscribed to one of its channels
func (h *Hub) broadcastEvent(ev state.FeedEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("❌ Failed to marshal %s event: %v", ev.Type, err)
		return
	}
	channels := channelsFor(ev)

	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()

	for client := range h.clients {
		if !client.subscribedToAny(channels) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			// Client's send channel is full, skip
			log.Printf("⚠️  Client %s send buffer full, skipping message", client.ID)
		}
	}
}

func (c *ClientConnection) subscribedToAny(channels []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range channels {
		if c.Subscriptions[ch] {
			return true
		}
	}
	return false
}

// HandleWS is the race feed WebSocket endpoint
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	log.Println("📥 WebSocket connection from:", r.RemoteAddr)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("❌ WebSocket upgrade failed:", err)
		return
	}

	client := &ClientConnection{
		ID:            fmt.Sprintf("%d-%d", time.Now().Unix(), atomic.AddInt64(&h.idCount, 1)),
		Conn:          conn,
		Subscriptions: make(map[string]bool),
		Send:          make(chan []byte, 256),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go h.readPump(client)
}

// writePump sends queued messages and keeps the connection alive with pings
func (c *ClientConnection) writePump() {
	ticker := time.NewTicker(config.WSPingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("❌ Write error for client %s: %v", c.ID, err)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads subscription requests until the connection closes
func (h *Hub) readPump(c *ClientConnection) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	})

	for {
		_, messageBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ Read error for client %s: %v", c.ID, err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Printf("❌ Failed to parse message from client %s: %v", c.ID, err)
			continue
		}
		h.handleMessage(c, msg)
	}
}

func (h *Hub) handleMessage(c *ClientConnection, msg ClientMessage) {
	channel, _ := msg.Data["channel"].(string)
	if msg.Type == "subscribe" || msg.Type == "unsubscribe" {
		if channel != ChannelRaces && !strings.HasPrefix(channel, raceChannelPrefix) {
			c.queue(map[string]interface{}{"type": "error", "error": "unknown channel " + channel})
			return
		}
	}

	switch msg.Type {
	case "subscribe":
		c.mu.Lock()
		c.Subscriptions[channel] = true
		c.mu.Unlock()
		log.Printf("📡 Client %s subscribed to: %s", c.ID, channel)
		h.sendBacklog(c, channel)

	case "unsubscribe":
		c.mu.Lock()
		delete(c.Subscriptions, channel)
		c.mu.Unlock()
		log.Printf("📴 Client %s unsubscribed from: %s", c.ID, channel)

	default:
		log.Printf("⚠️  Unknown message type from client %s: %s", c.ID, msg.Type)
	}
}

// sendBacklog replays recent events of channel as one message
func (h *Hub) sendBacklog(c *ClientConnection, channel string) {
	events := make([]state.FeedEvent, 0)
	for _, ev := range h.feed.Recent() {
		for _, ch := range channelsFor(ev) {
			if ch == channel {
				events = append(events, ev)
				break
			}
		}
	}
	c.queue(map[string]interface{}{
		"type":    "backlog",
		"channel": channel,
		"events":  events,
	})
	log.Printf("📨 Client %s - sent %d backlog events for %s", c.ID, len(events), channel)
}

func (c *ClientConnection) queue(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("❌ Failed to marshal message for client %s: %v", c.ID, err)
		return
	}
	defer func() {
		// Send is closed once the hub drops the client.
		_ = recover()
	}()
	select {
	case c.Send <- data:
	default:
		log.Printf("⚠️  Client %s send buffer full, skipping message", c.ID)
	}
}
