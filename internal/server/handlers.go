// Package server exposes the HTTP handlers: the authenticated WebSocket
// upgrade and the health check.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mhkarimi/chatrelay/internal/auth"
)

// NewWebSocketHandler returns the handler for the websocket endpoint. The
// bearer credential is extracted and verified on the upgrade request, before
// the connection is upgraded: a connection without a valid identity never
// reaches the hub. Every verification failure fails closed with 401 and the
// taxonomy reason in the body.
func NewWebSocketHandler(hub *Hub, authenticator *auth.Authenticator, origins *originChecker) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		identity, err := authenticator.Authenticate(r)
		if err != nil {
			slog.Warn("Handshake authentication failed", "addr", r.RemoteAddr, "error", err)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr, identity)

		// Register with the hub; the hub launches the pump goroutines.
		select {
		case hub.register <- client:
		case <-hub.ctx.Done():
			// Shutdown already in progress; no new connections.
			_ = conn.Close()
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "chatrelay server is running!")
}
