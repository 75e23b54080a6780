package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// emit persists a session event and broadcasts it to the session's subscribers.
// Failures are logged; events never fail the operation that produced them.
func (s *Service) emit(ctx context.Context, sessionID string, eventType domain.EventType, payload interface{}) {
	ts := time.Now().UnixMilli()
	if sessionID != "" {
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			log.Printf("ERROR: failed to marshal %s payload: %v", eventType, err)
			return
		}
		event := &domain.Event{
			EventID:   "evt_" + uuid.New().String()[:8],
			SessionID: sessionID,
			Ts:        ts,
			Type:      eventType,
			Payload:   payloadBytes,
		}
		if err := s.store.CreateEvent(ctx, event); err != nil {
			log.Printf("ERROR: failed to record %s event for session %s: %v", eventType, sessionID, err)
		}
	}

	if s.hub == nil {
		return
	}
	msg := domain.BroadcastMessage{Type: eventType, SessionID: sessionID, Data: payload, Timestamp: ts}
	var err error
	if sessionID == "" {
		err = s.hub.BroadcastToAll(&msg)
	} else {
		err = s.hub.BroadcastToSession(sessionID, &msg)
	}
	if err != nil {
		log.Printf("ERROR: failed to broadcast %s: %v", eventType, err)
	}
}

// ListEvents returns persisted events for a session.
func (s *Service) ListEvents(ctx context.Context, sessionID string, afterTs int64, limit int) ([]domain.Event, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, sessionID, afterTs, limit)
}

func (s *Service) duelUpdated(run domain.DuelRun) {
	eventType := domain.EventTypeDuelProgress
	switch {
	case run.Status == domain.DuelStatusPending:
		eventType = domain.EventTypeDuelStarted
	case run.Status.Terminal():
		eventType = domain.EventTypeDuelCompleted
	}
	s.emit(context.Background(), "", eventType, run)
}
