// Package server coordinates client registration, presence publication, and
// message routing for the chatrelay WebSocket system via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mhkarimi/chatrelay/internal/auth"
	"github.com/mhkarimi/chatrelay/internal/config"
	"github.com/mhkarimi/chatrelay/internal/presence"
	"github.com/mhkarimi/chatrelay/internal/rooms"
)

// inboundEvent pairs a decoded event envelope with the connection it arrived on.
type inboundEvent struct {
	sender   *Client
	envelope Envelope
}

// Hub owns all connection state: the client set, the presence registry, and
// room membership. Its Run loop serializes every registry and room mutation,
// so a mutation and the snapshot published for it form an atomic unit; only
// broadcast fan-out happens outside that ordering, on already-captured
// snapshots.
type Hub struct {
	cfg        *config.Config
	registry   *presence.Registry
	rooms      *rooms.Tracker
	clients    map[*Client]bool
	byID       map[string]*Client
	events     chan inboundEvent
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub for the given configuration. The hub is constructed
// once at process start and runs until Shutdown; there is no lazy,
// request-triggered initialization.
func NewHub(cfg *config.Config) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:        cfg,
		registry:   presence.NewRegistry(),
		rooms:      rooms.NewTracker(),
		clients:    make(map[*Client]bool),
		byID:       make(map[string]*Client),
		events:     make(chan inboundEvent),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Registry exposes the presence registry for read-only inspection.
func (h *Hub) Registry() *presence.Registry {
	return h.registry
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, and event routing. It should be called in its own goroutine
// as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				slog.Warn("Received nil client registration; skipping")
				continue
			}
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case in := <-h.events:
			h.dispatch(in)
		}
	}
}

// registerClient adds the client to the connection set, records its presence,
// publishes the post-mutation snapshot, and confirms the handshake.
func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	h.byID[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	slog.Info("Client registered",
		"addr", client.addr, "user", client.identity.UserID,
		"name", client.identity.UserName, "total", clientCount)

	if client.conn != nil {
		h.wg.Add(2)
		go func() {
			defer h.wg.Done()
			client.writePump()
		}()
		go func() {
			defer h.wg.Done()
			client.readPump()
		}()
	}

	entries := h.registry.Register(client.id, client.identity)
	h.broadcastSnapshot(entries)
	h.sendAuthenticated(client)
}

// unregisterClient tears down a connection: room membership and presence are
// removed before the resulting snapshot is computed and published. A second
// unregister for the same client is a no-op.
func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	wasPresent := false
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		delete(h.byID, client.id)
		client.closed = true
		wasPresent = true
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	if wasPresent {
		close(client.send)
	}

	h.rooms.Leave(client.id)
	entries, removed := h.registry.Unregister(client.id)
	if removed {
		slog.Info("Client unregistered",
			"addr", client.addr, "user", client.identity.UserID, "total", clientCount)
		h.broadcastSnapshot(entries)
	}
}

// dispatch routes one inbound event according to the configured routing
// policy. A panic while handling an event is contained to that event.
func (h *Hub) dispatch(in inboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic in event dispatch",
				"event", in.envelope.Event, "addr", in.sender.addr, "panic", r)
		}
	}()

	switch in.envelope.Event {
	case EventChatMessage:
		h.handleChatMessage(in.sender, in.envelope.Data)
	case EventSendMsg:
		h.handleRoomMessage(in.sender, in.envelope.Data)
	case EventJoinRoom:
		h.handleJoinRoom(in.sender, in.envelope.Data)
	case EventTyping:
		h.handleTyping(in.sender, EventUserTyping)
	case EventStopTyping:
		h.handleTyping(in.sender, EventUserStopTyping)
	case EventPrivateMessage:
		h.handlePrivateMessage(in.sender, in.envelope.Data)
	default:
		slog.Warn("Unknown event", "event", in.envelope.Event, "addr", in.sender.addr)
	}
}

// handleChatMessage broadcasts a chat message to every registered connection,
// including the sender. Only active under the global routing policy.
func (h *Hub) handleChatMessage(sender *Client, data json.RawMessage) {
	if h.cfg.RoutingPolicy != config.RoutingGlobal {
		slog.Warn("Dropping chat-message under room routing policy", "addr", sender.addr)
		return
	}

	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		slog.Warn("Invalid chat-message payload", "addr", sender.addr, "error", err)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	payload, err := marshalEvent(EventChatMessage, ChatMessage{
		UserID:    sender.identity.UserID,
		UserName:  sender.identity.UserName,
		Message:   text,
		Timestamp: timestamp(),
	})
	if err != nil {
		slog.Error("Error encoding chat message", "error", err)
		return
	}

	slog.Debug("Broadcasting chat message", "user", sender.identity.UserID)
	h.broadcastToAll(payload, nil)
}

// handleRoomMessage delivers a room-tagged message to the members of that
// room, excluding the sender: clients render their own outgoing message
// locally and never receive a server echo of it. Only active under the room
// routing policy.
func (h *Hub) handleRoomMessage(sender *Client, data json.RawMessage) {
	if h.cfg.RoutingPolicy != config.RoutingRoom {
		slog.Warn("Dropping send_msg under global routing policy", "addr", sender.addr)
		return
	}

	var msg RoomMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("Invalid send_msg payload", "addr", sender.addr, "error", err)
		return
	}
	msg.Msg = strings.TrimSpace(msg.Msg)
	if msg.Msg == "" || msg.RoomID == "" {
		return
	}

	// The sender's identity is authoritative regardless of what the
	// payload claims.
	msg.User = sender.identity.UserName
	if msg.Time == "" {
		msg.Time = timestamp()
	}

	payload, err := marshalEvent(EventReceiveMsg, msg)
	if err != nil {
		slog.Error("Error encoding room message", "error", err)
		return
	}

	for _, connID := range h.rooms.MembersOf(msg.RoomID) {
		if connID == sender.id {
			continue
		}
		if member := h.clientByID(connID); member != nil {
			h.safeSend(member, payload)
		}
	}
}

// handleJoinRoom moves the connection into the requested room, leaving its
// current room first.
func (h *Hub) handleJoinRoom(sender *Client, data json.RawMessage) {
	if h.cfg.RoutingPolicy != config.RoutingRoom {
		slog.Warn("Dropping join_room under global routing policy", "addr", sender.addr)
		return
	}
	if sender.identity.UserID == "" {
		slog.Warn("Rejecting join_room", "addr", sender.addr, "error", auth.ErrNotAuthenticated)
		return
	}

	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil {
		slog.Warn("Invalid join_room payload", "addr", sender.addr, "error", err)
		return
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return
	}

	left, moved := h.rooms.Join(sender.id, roomID)
	if moved {
		slog.Info("Client switched room",
			"user", sender.identity.UserID, "from", left, "to", roomID)
	} else {
		slog.Info("Client joined room", "user", sender.identity.UserID, "room", roomID)
	}
}

// handleTyping forwards a typing indicator to every connection except the
// sender, regardless of routing policy. The server performs no debouncing:
// the 1s quiet-period timer lives on the client, which emits exactly one
// stop-typing when it elapses.
func (h *Hub) handleTyping(sender *Client, event string) {
	payload, err := marshalEvent(event, TypingNotice{
		UserID:   sender.identity.UserID,
		UserName: sender.identity.UserName,
	})
	if err != nil {
		slog.Error("Error encoding typing notice", "error", err)
		return
	}
	h.broadcastToAll(payload, sender)
}

// handlePrivateMessage delivers a message to every connection held by the
// recipient user. An offline recipient or empty message is dropped silently.
func (h *Hub) handlePrivateMessage(sender *Client, data json.RawMessage) {
	var req PrivateMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Warn("Invalid private-message payload", "addr", sender.addr, "error", err)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" || req.RecipientID == "" {
		return
	}

	payload, err := marshalEvent(EventPrivateMessage, PrivateMessage{
		SenderID:   sender.identity.UserID,
		SenderName: sender.identity.UserName,
		Message:    req.Message,
		Timestamp:  timestamp(),
	})
	if err != nil {
		slog.Error("Error encoding private message", "error", err)
		return
	}

	for _, recipient := range h.clientsOfUser(req.RecipientID) {
		h.safeSend(recipient, payload)
	}
}

// sendAuthenticated confirms the completed handshake to the new connection.
func (h *Hub) sendAuthenticated(client *Client) {
	payload, err := marshalEvent(EventAuthenticated, AuthenticatedNotice{
		UserID:   client.identity.UserID,
		UserName: client.identity.UserName,
		Message:  "Authentication successful",
	})
	if err != nil {
		slog.Error("Error encoding authenticated notice", "error", err)
		return
	}
	h.safeSend(client, payload)
}

// broadcastSnapshot publishes the full presence snapshot to every open
// connection. Exactly one snapshot follows each register or unregister, and
// it reflects the post-mutation state.
func (h *Hub) broadcastSnapshot(entries []presence.Entry) {
	payload, err := marshalEvent(EventOnlineUsers, entries)
	if err != nil {
		slog.Error("Error encoding presence snapshot", "error", err)
		return
	}
	h.broadcastToAll(payload, nil)
}

// broadcastToAll sends the payload to every registered connection, optionally
// excluding one. Fan-out runs on a snapshot of the client set captured under
// the lock; the lock is never held across a send.
func (h *Hub) broadcastToAll(payload []byte, except *Client) {
	clients := h.getClientSnapshot()

	var clientsToRemove []*Client
	for _, client := range clients {
		if except != nil && client == except {
			continue
		}
		if !h.safeSend(client, payload) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}

	h.removeFailedClients(clientsToRemove)
}

// getClientSnapshot returns a point-in-time copy of the client set.
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// clientByID resolves a connection id to its client, if still registered.
func (h *Hub) clientByID(connectionID string) *Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.byID[connectionID]
}

// clientsOfUser returns every registered connection whose identity matches
// the user id. There may be several: presence is tracked per device.
func (h *Hub) clientsOfUser(userID string) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var matches []*Client
	for client := range h.clients {
		if client.identity.UserID == userID {
			matches = append(matches, client)
		}
	}
	return matches
}

// safeSend queues a payload for one client without blocking. It returns false
// when the client is gone or its buffer is full.
func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic in safeSend", "panic", r)
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// removeFailedClients drops clients whose send buffer overflowed. Closing the
// send channel makes the write pump close the connection, which in turn makes
// the read pump run the normal unregister path for presence and room cleanup.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			delete(h.byID, client.id)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			slog.Warn("Client removed due to full send buffer", "addr", client.addr)
		}
	}
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients notifies every open connection that the server is going
// away, then closes them all.
func (h *Hub) shutdownClients() {
	slog.Info("Shutting down all client connections...")

	notice, err := marshalEvent(EventServerShutdown, ShutdownNotice{Message: "Server is shutting down"})
	if err == nil {
		for _, client := range h.getClientSnapshot() {
			h.safeSend(client, notice)
		}
	}

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	var channelsToClose []chan []byte
	for client := range h.clients {
		clients = append(clients, client)
		client.closed = true
		channelsToClose = append(channelsToClose, client.send)
	}
	h.clients = make(map[*Client]bool)
	h.byID = make(map[string]*Client)
	h.mutex.Unlock()

	// The buffered shutdown notice drains before the close frame goes out.
	for _, ch := range channelsToClose {
		close(ch)
	}

	slog.Info("Closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	slog.Info("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		slog.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
