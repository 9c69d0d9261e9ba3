// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package broadcast

import (
	"context"
	"errors"
	"time"

	"github.com/danielhkuo/livepoll/auth"
	"github.com/danielhkuo/livepoll/models"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
	joinTimeout    = 5 * time.Second
)

// Client is one websocket connection. Room membership is guarded by the
// hub's lock.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	id    auth.Identity
	send  chan []byte
	rooms map[string]struct{}
}

func newClient(h *Hub, conn *websocket.Conn, id auth.Identity) *Client {
	return &Client{
		hub:   h,
		conn:  conn,
		id:    id,
		send:  make(chan []byte, sendBuffer),
		rooms: make(map[string]struct{}),
	}
}

// enqueue reports false when the buffer is full. Caller holds the hub lock,
// so send is never closed underneath it.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		c.hub.log.Info("websocket disconnected", "user_id", c.id.UserID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("websocket read failed", "user_id", c.id.UserID, "error", err)
			}
			return
		}
		c.handle(frame)
	}
}

func (c *Client) handle(frame Frame) {
	switch frame.Event {
	case EventJoinPoll:
		c.join(frame.Code)
	case EventLeavePoll:
		c.hub.Leave(c, frame.Code)
	default:
		c.hub.sendTo(c, EventError, models.ErrorResponse{
			Error:   "unknown event",
			Message: frame.Event,
		})
	}
}

// join authorizes the caller, subscribes it and sends the current state.
// The snapshot is read after subscribing so nothing published in between
// is lost.
func (c *Client) join(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	if _, err := c.hub.state.GetPollState(ctx, code, c.id.UserID); err != nil {
		c.hub.sendTo(c, EventError, models.ErrorResponse{
			Error:   "join failed",
			Message: err.Error(),
		})
		return
	}

	c.hub.Join(c, code)

	state, err := c.hub.state.GetPollState(ctx, code, c.id.UserID)
	if err != nil {
		c.hub.Leave(c, code)
		c.hub.sendTo(c, EventError, models.ErrorResponse{
			Error:   "join failed",
			Message: err.Error(),
		})
		return
	}
	c.hub.sendTo(c, models.EventPollState, state)

	c.hub.log.Debug("joined room", "code", code, "user_id", c.id.UserID)
}

func (c *Client) writePump() {
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
				// Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.hub.log.Debug("websocket write failed", "user_id", c.id.UserID, "error", err)
				}
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
