package transport

import (
	"encoding/json"
	"io"

	"github.com/gorilla/websocket"
)

// wsFramer implements Framer over a gorilla/websocket connection, one JSON
// document per text message, the optional alternative framing §4.3 allows
// besides line-delimited JSON.
type wsFramer struct {
	conn *websocket.Conn
}

// NewWebSocketFramer wraps an established *websocket.Conn as a Framer.
func NewWebSocketFramer(conn *websocket.Conn) Framer {
	return &wsFramer{conn: conn}
}

func (f *wsFramer) ReadMessage() (json.RawMessage, error) {
	for {
		mt, data, err := f.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if mt != websocket.TextMessage {
			continue
		}
		return json.RawMessage(data), nil
	}
}

func (f *wsFramer) WriteMessage(doc json.RawMessage) error {
	return f.conn.WriteMessage(websocket.TextMessage, doc)
}

func (f *wsFramer) Close() error {
	_ = f.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return f.conn.Close()
}
