// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/danielhkuo/livepoll/auth"
	"github.com/danielhkuo/livepoll/models"
	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("hub closed")

// Client frame events
const (
	EventJoinPoll  = "join-poll"
	EventLeavePoll = "leave-poll"
	EventError     = "error"
)

// Frame is the JSON message exchanged over a connection. Clients send
// {"event":"join-poll","code":"POLL-..."}; the server sends
// {"event":"question-results","data":{...}}.
type Frame struct {
	Event string          `json:"event"`
	Code  string          `json:"code,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StateReader authorizes a room join and returns the snapshot the joining
// connection starts from. session.Registry implements it.
type StateReader interface {
	GetPollState(ctx context.Context, code, userID string) (models.PollState, error)
}

// StateFunc adapts a function to StateReader. It lets the hub be built
// before the registry that publishes through it.
type StateFunc func(ctx context.Context, code, userID string) (models.PollState, error)

func (f StateFunc) GetPollState(ctx context.Context, code, userID string) (models.PollState, error) {
	return f(ctx, code, userID)
}

// Hub fans room events out to websocket connections. Rooms are keyed by
// poll code.
type Hub struct {
	state    StateReader
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}
	closed  bool
}

// NewHub creates a hub. allowedOrigin "*" accepts any websocket origin.
func NewHub(state StateReader, log *slog.Logger, allowedOrigin string) *Hub {
	return &Hub{
		state: state,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
	}
}

// Serve upgrades the request and runs the connection for id until it
// disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.log.Warn("websocket upgrade failed", "error", err, "user_id", id.UserID)
		return
	}

	c := newClient(h, conn, id)
	if !h.register(c) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	h.log.Info("websocket connected", "user_id", id.UserID)

	go c.writePump()
	c.readPump()
}

// Publish sends an event to every connection in room. It never blocks: a
// connection whose buffer is full is disconnected and must resync from a
// snapshot.
func (h *Hub) Publish(room, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("broadcast: marshal %s: %w", event, err)
	}
	msg, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("broadcast: marshal frame: %w", err)
	}

	var slow []*Client

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	for c := range h.rooms[room] {
		if !c.enqueue(msg) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("dropping slow websocket client", "room", room, "user_id", c.id.UserID)
		h.unregister(c)
	}

	return nil
}

// Join subscribes c to room. Joining a room twice is a no-op; the result
// reports whether c was newly added.
func (h *Hub) Join(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	if _, ok := members[c]; ok {
		return false
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	return true
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	members := h.rooms[room]
	if members == nil {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// RoomSize returns the number of connections subscribed to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects every client and rejects further publishes.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		h.unregisterLocked(c)
	}
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(c)
}

// unregisterLocked removes c from all rooms and closes its send channel,
// which stops its write pump. Safe to call more than once.
func (h *Hub) unregisterLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	close(c.send)
}

// sendTo queues a frame for a single client.
func (h *Hub) sendTo(c *Client, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("failed to marshal frame", "event", event, "error", err)
		return
	}
	msg, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		h.log.Error("failed to marshal frame", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	_, live := h.clients[c]
	ok := !live || c.enqueue(msg)
	h.mu.RUnlock()

	if !ok {
		h.unregister(c)
	}
}
