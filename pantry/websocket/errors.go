package websocket

import (
	"errors"

	"github.com/coder/websocket"
)

var (
	// ErrConnectionClosed is returned when writing to a closed connection.
	ErrConnectionClosed = errors.New("websocket: connection closed")

	// ErrHubClosed is returned when joining a closed hub.
	ErrHubClosed = errors.New("websocket: hub closed")
)

// CloseStatus returns the status of the peer's close frame in err's chain,
// or -1.
func CloseStatus(err error) StatusCode {
	return websocket.CloseStatus(err)
}

// IsNormalClose reports whether the peer closed normally or went away,
// which is how a browser tab ends a connection.
func IsNormalClose(err error) bool {
	s := CloseStatus(err)
	return s == StatusNormalClosure || s == StatusGoingAway
}
