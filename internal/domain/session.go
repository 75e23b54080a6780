package domain

import "time"

// SessionStatus represents the lifecycle status of a session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusKilled    SessionStatus = "killed"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusActive, SessionStatusCompleted, SessionStatusFailed, SessionStatusKilled:
		return true
	}
	return false
}

// CanTransitionTo reports whether a session may move from s to next. Active sessions may
// end in any way; completed and failed sessions may only be killed; killed is final.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if !next.Valid() || next == SessionStatusActive || s == next {
		return false
	}
	switch s {
	case SessionStatusActive:
		return true
	case SessionStatusCompleted, SessionStatusFailed:
		return next == SessionStatusKilled
	default:
		return false
	}
}

// ContextEntry is a single advisory context value attached to a session.
type ContextEntry struct {
	Value   string    `json:"value"`
	Source  string    `json:"source"`
	AddedAt time.Time `json:"added_at"`
}

// Session is a conversation or work unit.
type Session struct {
	SessionID string                  `json:"session_id"`
	Status    SessionStatus           `json:"status"`
	Route     []Eye                   `json:"route,omitempty"`
	RouteName string                  `json:"route_name,omitempty"`
	Context   map[string]ContextEntry `json:"context"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}
