// Package transport owns the WebSocket endpoint: the connection interface
// the rest of the server programs against, the HTTP upgrade, and the origin
// policy. Everything above this package sees text frames only.
package transport

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parlorhq/parlor/internal/v1/logging"
	"go.uber.org/zap"
)

// writeWait bounds how long a single frame write may block before the
// connection is considered dead.
const writeWait = 10 * time.Second

// Conn is the subset of *websocket.Conn the server uses. Tests substitute
// scripted mocks.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// WriteText writes one text frame under the standard write deadline.
func WriteText(conn Conn, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// WriteClose sends a close frame carrying reason. Best effort: the peer may
// already be gone.
func WriteClose(conn Conn, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
}

// Upgrader builds the websocket.Upgrader used by every ws route. The origin
// policy is exact-match against the configured origins; same-host requests
// are additionally allowed in development.
func Upgrader(allowedOrigins []string, development bool) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowed := CheckOrigin(r, allowedOrigins, development); !allowed {
				logging.Warn(r.Context(), "Rejected WebSocket upgrade from disallowed origin",
					zap.String("origin", r.Header.Get("Origin")))
				return false
			}
			return true
		},
	}
}
