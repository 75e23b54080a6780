package ws

// Message types from client to server.
const (
	TypeHello = "hello"
	TypePing  = "ping"
	TypePong  = "pong"
)

// Message types from server to client.
const (
	TypeHelloAck = "hello_ack"
	TypeError    = "error"
)

// Error codes.
const (
	ErrorCodeInvalidMessage = "INVALID_MESSAGE"
)

// BaseMessage contains common fields for all client messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ErrorMessage reports a protocol error to one client.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}
