// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mhkarimi/chatrelay/internal/auth"
	"github.com/mhkarimi/chatrelay/internal/config"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client represents one authenticated WebSocket connection. The identity is
// attached exactly once, at handshake time, and never changes afterwards; the
// hub indexes the connection only by its opaque id.
type Client struct {
	id             string
	identity       auth.Identity
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      config.RateLimitConfig
}

// NewClient creates a Client for an upgraded connection carrying its verified
// identity. The send channel is buffered so broadcast fan-out never blocks on
// a slow connection.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, identity auth.Identity) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:             uuid.NewString(),
		identity:       identity,
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
}

// ID returns the opaque connection id.
func (c *Client) ID() string {
	return c.id
}

// Identity returns the identity attached at handshake time.
func (c *Client) Identity() auth.Identity {
	return c.identity
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Error("Error setting initial read deadline", "addr", c.addr, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			slog.Error("Error setting read deadline in pong handler", "addr", c.addr, "error", err)
		}
		return nil
	})
}

// handleReadError logs appropriate messages based on the error type and
// returns true if the read loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		slog.Warn("Message exceeded maximum size", "addr", c.addr, "limit", c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		slog.Info("Client disconnected", "addr", c.addr, "user", c.identity.UserID, "reason", err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		slog.Info("Client connection closed", "addr", c.addr, "user", c.identity.UserID)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		slog.Warn("Unexpected WebSocket error", "addr", c.addr, "error", err)
		return true
	}

	slog.Warn("WebSocket read error", "addr", c.addr, "error", err)
	return true
}

// checkRateLimit reports whether the next inbound event may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		slog.Warn("Rate limit exceeded; discarding event",
			"addr", c.addr, "burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// processFrame decodes a raw frame into an event envelope and hands it to the
// hub for routing. Frames that are not valid envelopes are dropped.
func (c *Client) processFrame(rawMessage []byte) bool {
	var env Envelope
	if err := json.Unmarshal(rawMessage, &env); err != nil {
		slog.Warn("Invalid event frame", "addr", c.addr, "error", err)
		return false
	}
	if env.Event == "" {
		slog.Warn("Event frame without event name", "addr", c.addr)
		return false
	}

	select {
	case c.hub.events <- inboundEvent{sender: c, envelope: env}:
		return true
	case <-c.hub.ctx.Done():
		return false
	}
}

// readPump reads frames from the connection until it closes, then triggers
// unregistration. A panic while handling a frame tears down only this
// connection, never the process.
func (c *Client) readPump() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic in readPump", "addr", c.addr, "panic", r)
		}
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				slog.Error("Error closing connection in readPump", "error", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
			continue
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processFrame(rawMessage)
	}
}

// writePump writes queued frames and periodic pings until the send channel is
// closed or a write fails. Each envelope goes out as its own text frame so
// clients can decode every frame independently.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.handleMessage(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.handlePing() {
				return
			}
		}
	}
}

// closeConnection closes the WebSocket connection, ignoring the errors that
// normally accompany an already-closed connection.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			slog.Error("Error closing connection in writePump", "error", err)
		}
	}
}

// handleMessage writes one outgoing frame and returns false if the connection
// should be closed.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.Error("Error setting write deadline", "addr", c.addr, "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		slog.Warn("WebSocket write error", "addr", c.addr, "error", err)
		return false
	}
	return true
}

// writeCloseMessage sends a close frame to the client.
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			slog.Warn("Error writing close message", "addr", c.addr, "error", err)
		}
	}
	return false
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

// handlePing sends a ping frame to keep the connection alive.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.Error("Error setting write deadline for ping", "addr", c.addr, "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			slog.Warn("Error writing ping message", "addr", c.addr, "error", err)
		}
		return false
	}
	return true
}
