package domain

import (
	"encoding/json"
	"time"
)

// EventType represents the type of a session event.
type EventType string

const (
	EventTypeSessionCreated  EventType = "session_created"
	EventTypeSessionStatus   EventType = "session_status"
	EventTypeContextUpdated  EventType = "context_updated"
	EventTypeEyeStarted      EventType = "eye_started"
	EventTypeEyeCompleted    EventType = "eye_completed"
	EventTypeEyeFailed       EventType = "eye_failed"
	EventTypeEyeRerun        EventType = "eye_rerun"
	EventTypeOrderViolation  EventType = "order_violation"
	EventTypeFlowPlanned     EventType = "flow_planned"
	EventTypeFlowFinished    EventType = "flow_finished"
	EventTypeDuelStarted     EventType = "duel_started"
	EventTypeDuelProgress    EventType = "duel_progress"
	EventTypeDuelCompleted   EventType = "duel_completed"
	EventTypeSettingsChanged EventType = "settings_changed"
)

// Event is a persisted audit record.
type Event struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// BroadcastMessage is the wire shape delivered to live subscribers.
type BroadcastMessage struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewBroadcastMessage stamps a message with the current time.
func NewBroadcastMessage(eventType EventType, sessionID string, data interface{}) BroadcastMessage {
	return BroadcastMessage{
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}
