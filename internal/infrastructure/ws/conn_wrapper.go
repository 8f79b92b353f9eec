package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// connWrapper serializes writes; gorilla permits only one concurrent writer.
type connWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newConnWrapper(conn *websocket.Conn) *connWrapper {
	return &connWrapper{conn: conn}
}

func (w *connWrapper) WriteJSON(v any) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteJSON(v)
}

func (w *connWrapper) Close() error {
	return w.conn.Close()
}
