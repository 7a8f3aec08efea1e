// Package server defines the JSON event envelope and the payload types
// exchanged with clients over the websocket connection.
package server

import (
	"encoding/json"
	"time"
)

// Client-to-server event names.
const (
	EventChatMessage    = "chat-message"
	EventSendMsg        = "send_msg"
	EventJoinRoom       = "join_room"
	EventTyping         = "typing"
	EventStopTyping     = "stop-typing"
	EventPrivateMessage = "private-message"
)

// Server-to-client event names.
const (
	EventReceiveMsg     = "receive_msg"
	EventUserTyping     = "user-typing"
	EventUserStopTyping = "user-stop-typing"
	EventOnlineUsers    = "online-users"
	EventAuthenticated  = "authenticated"
	EventServerShutdown = "server-shutdown"
)

// Envelope is the framing for every event in either direction: one JSON
// object per websocket text frame, carrying the event name and its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChatMessage is the server-to-client payload for globally broadcast chat.
type ChatMessage struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// RoomMessage is the payload for room-scoped chat, used by both send_msg and
// receive_msg.
type RoomMessage struct {
	RoomID string `json:"roomId"`
	User   string `json:"user"`
	Msg    string `json:"msg"`
	Time   string `json:"time"`
}

// TypingNotice identifies the sender of a typing or stop-typing event. The
// server performs no debouncing itself: clients re-arm a 1s timer per
// keystroke and emit exactly one stop-typing when it elapses, while the
// server merely forwards whatever it receives to everyone but the sender.
type TypingNotice struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// AuthenticatedNotice confirms a successful handshake to the new connection.
type AuthenticatedNotice struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Message  string `json:"message"`
}

// ShutdownNotice is broadcast to every open connection before the server
// stops accepting traffic.
type ShutdownNotice struct {
	Message string `json:"message"`
}

// PrivateMessageRequest is the client-to-server payload asking for delivery
// to a single recipient.
type PrivateMessageRequest struct {
	RecipientID string `json:"recipientId"`
	Message     string `json:"message"`
}

// PrivateMessage is the server-to-client payload delivered to the recipient's
// connections only.
type PrivateMessage struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

// marshalEvent encodes an event envelope ready for a websocket text frame.
func marshalEvent(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
