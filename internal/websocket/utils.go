package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// SafeConn serializes writes to a gorilla connection, which supports only one
// concurrent writer. Reads stay with the single reader goroutine.
type SafeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewSafeConn wraps conn.
func NewSafeConn(conn *websocket.Conn) *SafeConn {
	return &SafeConn{conn: conn}
}

// WriteTyped sends a strongly-typed event payload.
func (s *SafeConn) WriteTyped(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// WriteError sends a typed ErrorEvent.
func (s *SafeConn) WriteError(code, errMsg string, retryable bool) error {
	return s.WriteTyped(ErrorEvent{
		Event:     EventError,
		Code:      code,
		Error:     errMsg,
		Retryable: retryable,
	})
}

// ReadJSON reads and decodes the next client message. It sets a read deadline.
func (s *SafeConn) ReadJSON(v any) error {
	_ = s.conn.SetReadDeadline(time.Now().Add(readWait))
	return s.conn.ReadJSON(v)
}

// Close closes the underlying connection.
func (s *SafeConn) Close() error {
	return s.conn.Close()
}
