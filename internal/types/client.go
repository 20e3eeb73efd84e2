// internal/types/client.go
package types

import (
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Identity is the caller-supplied (userId, username) pair the engine works with.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

func (i Identity) Valid() bool {
	return i.UserID != "" && i.Username != ""
}

// Client is one live WebSocket connection.
type Client struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Inbox   chan []byte
	Done    chan struct{}
	Once    sync.Once
	Limiter *rate.Limiter

	// User is set when the handshake carried a valid token.
	User Identity
}
