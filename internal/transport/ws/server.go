// Package ws exposes the hub to WebSocket subscribers.
package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/thirdeye/internal/hub"
)

// Server handles WebSocket connections.
type Server struct {
	hub            *hub.Hub
	maxMessageSize int64
	upgrader       websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(h *hub.Hub, maxMessageSize int64) *Server {
	return &Server{
		hub:            h,
		maxMessageSize: maxMessageSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket upgrades the request and subscribes it to ?session_id.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("WARN: failed to upgrade WebSocket: %v", err)
		return err
	}

	if s.maxMessageSize > 0 {
		ws.SetReadLimit(s.maxMessageSize)
	}
	conn := s.hub.AddConnection(ws, c.QueryParam("session_id"))
	s.extendDeadline(ws)
	ws.SetPongHandler(func(string) error {
		conn.Touch()
		s.extendDeadline(ws)
		return nil
	})

	go s.readPump(ws, conn)
	return nil
}

// readPump reads client messages until the socket or the connection closes.
func (s *Server) readPump(ws *websocket.Conn, conn *hub.Connection) {
	defer s.hub.RemoveConnection(conn)

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WARN: WebSocket error on %s: %v", conn.ID, err)
			}
			return
		}
		conn.Touch()
		s.extendDeadline(ws)
		s.handleMessage(conn, message)
	}
}

// extendDeadline fails the next read once the client has been silent for the pong wait.
func (s *Server) extendDeadline(ws *websocket.Conn) {
	if wait := s.hub.PongWait(); wait > 0 {
		ws.SetReadDeadline(time.Now().Add(wait))
	}
}

// handleMessage dispatches incoming messages.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var msg BaseMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "invalid JSON message")
		return
	}

	switch msg.Type {
	case TypeHello:
		if msg.SessionID != "" {
			s.hub.BindSession(conn, msg.SessionID)
		}
		s.hub.Send(conn, BaseMessage{Type: TypeHelloAck, Ts: time.Now().UnixMilli(), SessionID: conn.SessionID()})
	case TypePing:
		s.hub.Send(conn, BaseMessage{Type: TypePong, Ts: time.Now().UnixMilli(), SessionID: conn.SessionID()})
	case TypePong:
		// Liveness was already recorded.
	default:
		s.sendError(conn, "unknown message type: "+msg.Type)
	}
}

func (s *Server) sendError(conn *hub.Connection, message string) {
	s.hub.Send(conn, ErrorMessage{
		BaseMessage: BaseMessage{Type: TypeError, Ts: time.Now().UnixMilli(), SessionID: conn.SessionID()},
		Code:        ErrorCodeInvalidMessage,
		Message:     message,
	})
}
