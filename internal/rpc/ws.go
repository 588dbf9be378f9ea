package rpc

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"docvet/internal/logging"
)

// upgrader accepts any origin; the server trusts its caller and runs
// behind whatever boundary the operator puts in front of it.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWS speaks one JSON-RPC envelope per WebSocket text message.
// Messages on one connection are dispatched in arrival order, so a client
// that needs concurrency opens more connections.
func (s *HTTPServer) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.HTTP("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	remote := conn.RemoteAddr().String()
	logging.HTTP("websocket connected: %s", remote)

	ctx := c.Request.Context()
	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.HTTP("websocket %s read error: %v", remote, err)
			}
			break
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		resp := s.async.DispatchRaw(ctx, raw)
		if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
			logging.HTTP("websocket %s write error: %v", remote, err)
			break
		}
	}
	logging.HTTP("websocket disconnected: %s", remote)
}
