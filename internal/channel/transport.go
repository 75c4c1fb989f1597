package channel

import (
	"context"

	"github.com/gorilla/websocket"
)

// Conn is the transport surface the manager drives. *websocket.Conn is
// adapted to it; tests substitute an in-memory fake.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens the websocket transport.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials with gorilla's default dialer.
type WebSocketDialer struct{}

// Dial opens a websocket connection to url.
func (WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return wsConn{conn}, nil
}

// wsConn narrows *websocket.Conn's ReadMessage to drop the message type.
type wsConn struct {
	*websocket.Conn
}

func (c wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.Conn.ReadMessage()
	return data, err
}

// isNormalClose reports whether err is an orderly websocket closure
// rather than a transport failure.
func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
