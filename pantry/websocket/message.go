package websocket

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message is the JSON envelope exchanged with clients.
type Message struct {
	// Type identifies the message type (e.g., "event", "state", "error").
	Type string `json:"type"`

	// Payload contains the message data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// ID is an optional identifier for request/response correlation.
	ID string `json:"id,omitempty"`
}

// NewMessage creates a new message with the given type and payload.
func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: msgType, Payload: data}, nil
}

// ParsePayload unmarshals the payload into v. An absent payload leaves v
// untouched.
func (m *Message) ParsePayload(v any) error {
	if len(m.Payload) == 0 || string(m.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// TypeInvalid is the type given to frames that do not decode as a Message.
const TypeInvalid = "invalid"

// MessageHandler handles one message type.
type MessageHandler func(ctx context.Context, client *Client, msg *Message) error

// Router dispatches messages to handlers by type.
type Router struct {
	handlers       map[string]MessageHandler
	defaultHandler MessageHandler
}

// NewRouter creates a new message router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]MessageHandler)}
}

// Handle registers a handler for a message type.
func (r *Router) Handle(msgType string, handler MessageHandler) {
	r.handlers[msgType] = handler
}

// Default sets the handler for unregistered message types. Without one,
// unknown types are ignored.
func (r *Router) Default(handler MessageHandler) {
	r.defaultHandler = handler
}

// Route dispatches msg to its handler.
func (r *Router) Route(ctx context.Context, client *Client, msg *Message) error {
	handler, ok := r.handlers[msg.Type]
	if !ok {
		if r.defaultHandler != nil {
			return r.defaultHandler(ctx, client, msg)
		}
		return nil
	}
	return handler(ctx, client, msg)
}

// Serve runs the client's read loop. Each text frame is decoded as a
// Message and routed; a frame that is not a Message is routed as type
// "invalid". A binary frame ends the loop.
func (r *Router) Serve(ctx context.Context, client *Client, cfg Config) error {
	return client.conn.readLoop(ctx, cfg, func(ctx context.Context, typ MessageType, data []byte) error {
		if typ != MessageText {
			return fmt.Errorf("websocket: unexpected %v frame", typ)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			msg = Message{Type: TypeInvalid}
		}
		return r.Route(ctx, client, &msg)
	})
}
