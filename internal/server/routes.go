// Package server wires the HTTP handlers into a ServeMux.
package server

import (
	"net/http"

	"github.com/mhkarimi/chatrelay/internal/auth"
)

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: the health check and the authenticated websocket endpoint.
func SetupRoutes(hub *Hub, authenticator *auth.Authenticator) *http.ServeMux {
	origins := newOriginChecker(hub.cfg.AllowedOrigins)

	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", NewWebSocketHandler(hub, authenticator, origins))
	return mux
}
