package websocket

import (
	"context"
	"sync"
)

// Hub groups connections into named rooms for broadcasting.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	count  int
	closed bool

	// OnConnect is called after a client joins.
	OnConnect func(*Client)

	// OnDisconnect is called after a client leaves.
	OnDisconnect func(*Client)
}

// NewHub creates a new connection hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]struct{})}
}

// Client is a connection registered in one room.
type Client struct {
	hub  *Hub
	conn *Conn
	id   string
	room string
}

// Join registers conn in room. The client leaves the room when the
// connection is closed.
func (h *Hub) Join(room, id string, conn *Conn) (*Client, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	client := &Client{hub: h, conn: conn, id: id, room: room}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[client] = struct{}{}
	h.count++
	h.mu.Unlock()

	conn.setOnClose(func() { h.leave(client) })

	if h.OnConnect != nil {
		h.OnConnect(client)
	}
	return client, nil
}

func (h *Hub) leave(client *Client) {
	h.mu.Lock()
	members, ok := h.rooms[client.room]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := members[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, client.room)
	}
	h.count--
	h.mu.Unlock()

	if h.OnDisconnect != nil {
		h.OnDisconnect(client)
	}
}

// Broadcast sends msg to every client in room and returns the last write
// error, if any.
func (h *Hub) Broadcast(ctx context.Context, room string, msg *Message) error {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[room]))
	for client := range h.rooms[room] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	var lastErr error
	for _, client := range clients {
		if err := client.Send(ctx, msg); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// CloseRoom closes every connection in room.
func (h *Hub) CloseRoom(room string, code StatusCode, reason string) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[room]))
	for client := range h.rooms[room] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		_ = client.conn.CloseWithReason(code, reason)
	}
}

// RoomSize returns the number of clients in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Clients returns the number of connected clients across all rooms.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Close closes every connection and refuses further joins.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var clients []*Client
	for _, members := range h.rooms {
		for client := range members {
			clients = append(clients, client)
		}
	}
	h.mu.Unlock()

	for _, client := range clients {
		_ = client.conn.CloseWithReason(StatusGoingAway, "server shutting down")
	}
}

// ID returns the client's identifier.
func (c *Client) ID() string { return c.id }

// Room returns the room the client joined.
func (c *Client) Room() string { return c.room }

// Conn returns the underlying connection.
func (c *Client) Conn() *Conn { return c.conn }

// Send writes msg to this client only.
func (c *Client) Send(ctx context.Context, msg *Message) error {
	return c.conn.writeJSON(ctx, msg)
}

// SendTyped builds a message from msgType and payload and sends it.
func (c *Client) SendTyped(ctx context.Context, msgType string, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return c.Send(ctx, msg)
}
