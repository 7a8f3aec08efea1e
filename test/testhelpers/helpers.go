// Package testhelpers provides common utilities and helper functions for
// testing the chatrelay server.
//
// This package contains reusable test utilities that are shared across
// integration tests: minting signed tokens, dialing the websocket endpoint,
// and reading event frames with deadlines.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/mhkarimi/chatrelay/internal/server"
)

// TestOrigin is the Origin header value the helpers send on every dial.
const TestOrigin = "http://localhost:3000"

// MintToken signs an HS256 token carrying the identity claims the server
// expects.
func MintToken(t *testing.T, secret, userID, userName string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":  userID,
		"name": userName,
		"exp":  time.Now().Add(time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

// MintExpiredToken signs a token whose expiry is already in the past.
func MintExpiredToken(t *testing.T, secret, userID, userName string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":  userID,
		"name": userName,
		"exp":  time.Now().Add(-time.Hour).Unix(),
		"iat":  time.Now().Add(-2 * time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

// ConnectWebSocket dials the websocket endpoint carrying the token as a query
// parameter. The HTTP response is returned as well so handshake failures can
// be asserted on.
func ConnectWebSocket(wsURL, token string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	url := wsURL
	if token != "" {
		url += "?token=" + token
	}
	return dialer.Dial(url, headers)
}

// SendEvent writes one event envelope to the connection.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("Failed to marshal event data: %v", err)
		}
		raw = encoded
	}
	if err := conn.WriteJSON(server.Envelope{Event: event, Data: raw}); err != nil {
		t.Fatalf("Failed to send %s event: %v", event, err)
	}
}

// WaitForEvent reads frames until one carrying the named event arrives,
// skipping interleaved events such as presence snapshots.
func WaitForEvent(t *testing.T, conn *websocket.Conn, event string) server.Envelope {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	if err := conn.SetReadDeadline(deadline); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	for time.Now().Before(deadline) {
		var env server.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("Failed reading while waiting for %s: %v", event, err)
		}
		if env.Event == event {
			return env
		}
	}

	t.Fatalf("Timed out waiting for %s event", event)
	return server.Envelope{}
}

// ExpectNoEvent asserts that no frame carrying the named event arrives within
// the window. Other events may arrive and are ignored.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, event string, window time.Duration) {
	t.Helper()

	deadline := time.Now().Add(window)
	if err := conn.SetReadDeadline(deadline); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	for {
		var env server.Envelope
		err := conn.ReadJSON(&env)
		if err != nil {
			return // timeout or close: nothing forbidden arrived
		}
		if env.Event == event {
			t.Fatalf("Expected no %s event, but received one", event)
		}
	}
}

// DecodeEventData unmarshals an envelope's payload into out.
func DecodeEventData(t *testing.T, env server.Envelope, out any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", env.Event, err)
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
