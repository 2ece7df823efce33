package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Imports can be large.
	maxMessageSize = 4 << 20

	sendBuffer = 64
)

type sendResult int

const (
	sendOK sendResult = iota
	sendFull
	sendClosed
)

// Client is one websocket connection. Its identity is fixed at upgrade time.
type Client struct {
	ID       uuid.UUID
	identity string
	conn     *websocket.Conn
	send     chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient wraps an upgraded connection
func NewClient(conn *websocket.Conn, identity string) *Client {
	return &Client{
		ID:       uuid.New(),
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
	}
}

// Identity returns the user bound to the connection, empty when anonymous
func (c *Client) Identity() string {
	return c.identity
}

func (c *Client) trySend(msg []byte) sendResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return sendClosed
	}
	select {
	case c.send <- msg:
		return sendOK
	default:
		return sendFull
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump decodes inbound envelopes and hands them to handle one at a time,
// so a client's requests are applied in the order it sent them.
func (c *Client) readPump(hub *Hub, handle func(*Client, Inbound)) {
	defer func() {
		hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				hub.log.Debug("websocket read failed", zap.String("client_id", c.ID.String()), zap.Error(err))
			}
			return
		}

		var in Inbound
		if err := json.Unmarshal(message, &in); err != nil || in.Event == "" {
			hub.Send(c, EventError, ErrorPayload{Code: "INVALID_INPUT", Message: "Malformed message"})
			continue
		}
		handle(c, in)
	}
}

// writePump drains the send queue onto the socket and keeps the peer alive
// with pings. It is the only goroutine writing to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// Serve registers the client, sends its initial snapshot and runs both
// pumps until the connection ends.
func (h *Hub) Serve(c *Client, handle func(*Client, Inbound)) {
	h.Register(c)
	if err := h.SendSnapshot(c, EventInitialData); err != nil {
		h.log.Warn("initial snapshot failed", zap.Error(err))
		h.Send(c, EventInitialData, []any{})
	}

	go c.writePump()
	c.readPump(h, handle)
}
