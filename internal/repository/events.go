package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// CreateEvent records an audit event.
func (s *SQLStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	var payload sql.NullString
	if len(event.Payload) > 0 {
		payload = nullString(string(event.Payload))
	}
	_, err := s.exec(ctx,
		`INSERT INTO events (event_id, session_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.SessionID, event.Ts, string(event.Type), payload)
	return err
}

// ListEvents returns events for a session after the given timestamp.
func (s *SQLStore) ListEvents(ctx context.Context, sessionID string, afterTs int64, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, session_id, ts, type, payload FROM events WHERE session_id = ? AND ts > ? ORDER BY ts ASC, event_id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.query(ctx, query, sessionID, afterTs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var eventType string
		var payload sql.NullString
		if err := rows.Scan(&e.EventID, &e.SessionID, &e.Ts, &eventType, &payload); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(eventType)
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
