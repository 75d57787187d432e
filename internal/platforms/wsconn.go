package platforms

import (
	"sync"

	"github.com/gorilla/websocket"
)

// wsConn wraps a websocket.Conn with a write mutex.
// gorilla/websocket does NOT support concurrent writes.
type wsConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) WriteJSONSafe(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}

func (c *wsConn) CloseSafe() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
	return c.Conn.Close()
}
