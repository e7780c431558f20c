package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"telemed-chat/internal/auth"
	"telemed-chat/internal/chat"
	"telemed-chat/internal/models"
	"telemed-chat/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client is one authenticated websocket connection. Inbound actions run as
// independent tasks and are not serialized against each other beyond the
// single read loop; two rapid edits from the same sender race at the store.
type Client struct {
	ConnID   string
	Identity auth.Identity

	conn    *websocket.Conn
	hub     *Hub
	coord   *chat.Coordinator
	limiter *rate.Limiter

	send chan []byte

	// Guarded by the hub mutex.
	rooms       map[string]bool
	currentRoom string
}

func newClient(hub *Hub, coord *chat.Coordinator, conn *websocket.Conn, connID string, identity auth.Identity, limiter *rate.Limiter) *Client {
	return &Client{
		ConnID:   connID,
		Identity: identity,
		conn:     conn,
		hub:      hub,
		coord:    coord,
		limiter:  limiter,
		send:     make(chan []byte, sendBuffer),
		rooms:    make(map[string]bool),
	}
}

// Send marshals and enqueues an event for this connection.
func (c *Client) Send(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	c.enqueue(payload)
}

func (c *Client) enqueue(payload []byte) {
	defer func() {
		// The send channel closes when the hub unregisters the client; a
		// broadcast racing that close is dropped like any other late write.
		_ = recover()
	}()
	select {
	case c.send <- payload:
	default:
		log.Printf("client %s send buffer full, dropping event", c.ConnID)
	}
}

func (c *Client) sendError(message string) {
	c.Send(models.NewErrorEvent(message))
}

// readPump consumes client actions until the connection drops.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var action models.Action
		if err := c.conn.ReadJSON(&action); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("websocket read error: %v", err)
				observability.IncWSEvent("ws_error")
			}
			return
		}

		if !c.limiter.Allow() {
			c.sendError("rate limit exceeded")
			continue
		}

		observability.IncWSEvent(action.Type)
		c.handleAction(ctx, action)
	}
}

// handleAction dispatches one inbound action. Failures are reported only to
// this connection; the connection itself stays open.
func (c *Client) handleAction(ctx context.Context, action models.Action) {
	switch action.Type {
	case models.ActionJoinRoom:
		if action.RoomID == "" {
			c.sendError("missing roomId")
			return
		}
		c.hub.JoinRoom(c, action.RoomID)

	case models.ActionSendMessage:
		if action.RoomID == "" {
			c.sendError("missing roomId")
			return
		}
		if _, err := c.coord.Send(ctx, c.Identity, c.ConnID, action.RoomID, action.Text, action.ReplyTo); err != nil {
			c.reportError(err)
		}

	case models.ActionEditMessage:
		if _, err := c.coord.Edit(ctx, c.Identity, action.RoomID, action.MessageID, action.NewText); err != nil {
			c.reportError(err)
		}

	case models.ActionDeleteMsg:
		if err := c.coord.Delete(ctx, c.Identity, action.RoomID, action.MessageID); err != nil {
			c.reportError(err)
		}

	case models.ActionAddReaction:
		if err := c.coord.React(ctx, c.Identity, action.RoomID, action.MessageID, action.Emoji); err != nil {
			c.reportError(err)
		}

	case models.ActionMarkRead:
		if err := c.coord.MarkRead(ctx, c.Identity, action.RoomID, action.MessageID); err != nil {
			c.reportError(err)
		}

	case models.ActionTyping:
		c.coord.Typing(c.Identity, c.ConnID, action.RoomID)

	case models.ActionStopTyping:
		c.coord.StopTyping(c.Identity, c.ConnID, action.RoomID)

	default:
		c.sendError("unknown action: " + action.Type)
	}
}

func (c *Client) reportError(err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		c.sendError(err.Error())
	case errors.Is(err, chat.ErrUnauthorized):
		c.sendError("not allowed")
	case errors.Is(err, chat.ErrNotFound):
		c.sendError("not found")
	default:
		log.Printf("action failed for conn %s: %v", c.ConnID, err)
		c.sendError("operation failed, please retry")
	}
}

// writePump drains the send channel and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error: %v", err)
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
