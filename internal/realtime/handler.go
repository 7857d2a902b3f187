package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"pokemon-arena/internal/model"
)

// SnapshotFunc returns the users currently online.
type SnapshotFunc func(ctx context.Context) ([]model.OnlineUser, error)

// Handler upgrades requests to the presence feed.
type Handler struct {
	hub      *Hub
	snapshot SnapshotFunc
	upgrader websocket.Upgrader
}

// NewHandler creates a feed handler. Every origin is accepted; the feed only
// carries public presence data.
func NewHandler(hub *Hub, snapshot SnapshotFunc) *Handler {
	return &Handler{
		hub:      hub,
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP registers the connection, sends a snapshot and then streams
// presence events until the peer disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.hub.register(c) {
		conn.Close()
		return
	}
	log.Debug().Str("remote", r.RemoteAddr).Msg("Presence subscriber connected")

	// Registered first so nothing published after the snapshot is missed.
	users, err := h.snapshot(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load presence snapshot")
		h.hub.unregister(c)
		conn.Close()
		return
	}
	if data, err := json.Marshal(Snapshot(users)); err == nil {
		h.hub.sendTo(c, data)
	}

	go c.writer()
	c.reader()

	h.hub.unregister(c)
	log.Debug().Str("remote", r.RemoteAddr).Msg("Presence subscriber disconnected")
}
