// session/store.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Store defines the interface for snapshot storage backends.
type Store interface {
	// Load retrieves a record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	Load(ctx context.Context, id string) (*Record, error)

	// Save stores a record. A record that has already expired is not stored.
	Save(ctx context.Context, rec *Record) error

	// Delete removes a record by ID.
	Delete(ctx context.Context, id string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}

// Record is the serializable unit stored in backends. Data is opaque JSON
// owned by the caller.
type Record struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	ExpiresAt time.Time       `json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

func (r *Record) clone() *Record {
	c := *r
	c.Data = append(json.RawMessage(nil), r.Data...)
	return &c
}

// Errors
var (
	ErrNotFound = errors.New("session: not found")
	ErrExpired  = errors.New("session: expired")
)
