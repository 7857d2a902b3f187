// Package realtime pushes presence changes to websocket subscribers.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"pokemon-arena/internal/model"
)

// EventType names a presence event.
type EventType string

// Presence events.
const (
	EventSnapshot EventType = "snapshot"
	EventOnline   EventType = "online"
	EventOffline  EventType = "offline"
)

// Event is one message on the presence feed. Snapshot carries Users,
// online and offline carry User.
type Event struct {
	Type  EventType          `json:"type"`
	User  *model.OnlineUser  `json:"user,omitempty"`
	Users []model.OnlineUser `json:"users,omitempty"`
}

// MarshalJSON always writes users on a snapshot, even when nobody is online.
func (e Event) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type  EventType           `json:"type"`
		User  *model.OnlineUser   `json:"user,omitempty"`
		Users *[]model.OnlineUser `json:"users,omitempty"`
	}
	out := wire{Type: e.Type, User: e.User}
	if e.Type == EventSnapshot {
		users := e.Users
		if users == nil {
			users = []model.OnlineUser{}
		}
		out.Users = &users
	} else if len(e.Users) > 0 {
		out.Users = &e.Users
	}
	return json.Marshal(out)
}

// Online builds the event for a user coming online.
func Online(u model.OnlineUser) Event {
	return Event{Type: EventOnline, User: &u}
}

// Offline builds the event for a user going offline.
func Offline(id model.ID) Event {
	return Event{Type: EventOffline, User: &model.OnlineUser{ID: id}}
}

// Snapshot builds the full-list event sent to new subscribers.
func Snapshot(users []model.OnlineUser) Event {
	if users == nil {
		users = []model.OnlineUser{}
	}
	return Event{Type: EventSnapshot, Users: users}
}

// Publisher is what services need from the hub.
type Publisher interface {
	Publish(ev Event)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans events out to connected clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// Publish queues ev for every client without blocking. Clients whose buffer
// is full are disconnected.
func (h *Hub) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event", string(ev.Type)).Msg("Failed to encode presence event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			c.close()
			log.Warn().Msg("Dropped slow presence subscriber")
		}
	}
}

func (h *Hub) sendTo(c *client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (c *client) writer() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reader discards inbound messages and returns when the peer goes away.
func (c *client) reader() {
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
