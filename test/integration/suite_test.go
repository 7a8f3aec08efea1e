// Package integration contains integration tests for the chatrelay server.
//
// These tests verify that the components work together correctly by running a
// real HTTP server, upgrading real WebSocket connections with signed tokens,
// and observing the event streams end to end.
package integration

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mhkarimi/chatrelay/internal/auth"
	"github.com/mhkarimi/chatrelay/internal/config"
	"github.com/mhkarimi/chatrelay/internal/server"
	"github.com/mhkarimi/chatrelay/test/testhelpers"
)

const testSecret = "integration-test-secret"

type testServer struct {
	hub   *server.Hub
	http  *httptest.Server
	wsURL string
}

// startTestServer boots a hub and HTTP server with the given routing policy.
// Shutdown is registered as a cleanup so every test tears down its own
// instance.
func startTestServer(t *testing.T, policy config.RoutingPolicy) *testServer {
	t.Helper()

	cfg := &config.Config{
		Port:           ":0",
		AllowedOrigins: []string{testhelpers.TestOrigin},
		MaxMessageSize: 4096,
		RateLimit: config.RateLimitConfig{
			Burst:          100,
			RefillInterval: time.Second,
		},
		Auth:            config.AuthConfig{Secret: testSecret},
		RoutingPolicy:   policy,
		ShutdownTimeout: 5 * time.Second,
	}

	authenticator, err := auth.New(auth.Config{Secret: cfg.Auth.Secret})
	if err != nil {
		t.Fatalf("Failed to create authenticator: %v", err)
	}

	hub := server.NewHub(cfg)
	go hub.Run()

	mux := server.SetupRoutes(hub, authenticator)
	ts := httptest.NewServer(mux)

	t.Cleanup(func() {
		_ = hub.Shutdown(5 * time.Second)
		ts.Close()
	})

	return &testServer{
		hub:   hub,
		http:  ts,
		wsURL: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

// connectUser dials with a freshly minted token and waits for the handshake
// confirmation, so the connection is known to be registered when it returns.
func connectUser(t *testing.T, ts *testServer, userID, userName string) *websocket.Conn {
	t.Helper()

	token := testhelpers.MintToken(t, testSecret, userID, userName)
	conn, resp, err := testhelpers.ConnectWebSocket(ts.wsURL, token)
	if err != nil {
		t.Fatalf("Failed to connect as %s: %v", userName, err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	testhelpers.WaitForEvent(t, conn, server.EventAuthenticated)
	return conn
}
