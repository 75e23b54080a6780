package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// CreateSession creates a new session.
func (s *SQLStore) CreateSession(ctx context.Context, session *domain.Session) error {
	if session.Status == "" {
		session.Status = domain.SessionStatusActive
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now()
	}
	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.CreatedAt

	var route sql.NullString
	if len(session.Route) > 0 {
		route = nullString(marshalString(session.Route))
	}
	_, err := s.exec(ctx,
		`INSERT INTO sessions (session_id, status, route, route_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		session.SessionID, string(session.Status), route, nullString(session.RouteName), session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return err
	}

	for key, entry := range session.Context {
		if err := s.SetContext(ctx, session.SessionID, key, entry); err != nil {
			return err
		}
	}
	return nil
}

// GetSession retrieves a session by ID. It returns nil when the session does not exist.
func (s *SQLStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var status string
	var route, routeName sql.NullString
	err := s.queryRow(ctx,
		`SELECT session_id, status, route, route_name, created_at, updated_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &status, &route, &routeName, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	session.Status = domain.SessionStatus(status)
	session.Route = unmarshalEyes(route)
	session.RouteName = routeName.String

	session.Context, err = s.loadContext(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetOrCreateSession gets an existing session or creates an active one.
func (s *SQLStore) GetOrCreateSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	session = &domain.Session{
		SessionID: sessionID,
		Status:    domain.SessionStatusActive,
		Context:   map[string]domain.ContextEntry{},
	}
	if err := s.CreateSession(ctx, session); err != nil {
		// Lost a creation race; the row exists now.
		if existing, getErr := s.GetSession(ctx, sessionID); getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return session, nil
}

// UpdateSessionStatus updates the status of a session.
func (s *SQLStore) UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error {
	res, err := s.exec(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE session_id = ?`,
		string(status), now(), sessionID)
	if err != nil {
		return err
	}
	return requireAffected(res, "session", sessionID)
}

// TransitionSessionStatus moves a session from one status to another. It reports false
// when the session is no longer in the expected status.
func (s *SQLStore) TransitionSessionStatus(ctx context.Context, sessionID string, from, to domain.SessionStatus) (bool, error) {
	res, err := s.exec(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE session_id = ? AND status = ?`,
		string(to), now(), sessionID, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetSessionRoute binds an ordered route to a session.
func (s *SQLStore) SetSessionRoute(ctx context.Context, sessionID, routeName string, route []domain.Eye) error {
	var encoded sql.NullString
	if len(route) > 0 {
		encoded = nullString(marshalString(route))
	}
	res, err := s.exec(ctx,
		`UPDATE sessions SET route = ?, route_name = ?, updated_at = ? WHERE session_id = ?`,
		encoded, nullString(routeName), now(), sessionID)
	if err != nil {
		return err
	}
	return requireAffected(res, "session", sessionID)
}

// ListSessions returns the most recently created sessions.
func (s *SQLStore) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	query := `SELECT session_id, status, route, route_name, created_at, updated_at FROM sessions ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.query(ctx, query)
	if err != nil {
		return nil, err
	}

	var sessions []domain.Session
	for rows.Next() {
		var session domain.Session
		var status string
		var route, routeName sql.NullString
		if err := rows.Scan(&session.SessionID, &status, &route, &routeName, &session.CreatedAt, &session.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		session.Status = domain.SessionStatus(status)
		session.Route = unmarshalEyes(route)
		session.RouteName = routeName.String
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range sessions {
		sessions[i].Context, err = s.loadContext(ctx, sessions[i].SessionID)
		if err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// DeleteSessionsBefore hard-deletes sessions created before the cutoff together
// with their context, progress and events.
func (s *SQLStore) DeleteSessionsBefore(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sub := `SELECT session_id FROM sessions WHERE created_at < ?`
		for _, table := range []string{"session_context", "progress", "events"} {
			q := fmt.Sprintf(`DELETE FROM %s WHERE session_id IN (%s)`, table, sub)
			if _, err := tx.ExecContext(ctx, s.rebind(q), before.UTC()); err != nil {
				return fmt.Errorf("failed to delete %s: %w", table, err)
			}
		}
		res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE created_at < ?`), before.UTC())
		if err != nil {
			return fmt.Errorf("failed to delete sessions: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

// SetContext sets one context key. Last writer wins.
func (s *SQLStore) SetContext(ctx context.Context, sessionID, key string, entry domain.ContextEntry) error {
	if entry.AddedAt.IsZero() {
		entry.AddedAt = now()
	}
	entry.AddedAt = entry.AddedAt.UTC()
	_, err := s.exec(ctx,
		`INSERT INTO session_context (session_id, ctx_key, value, source, added_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, ctx_key) DO UPDATE SET value = excluded.value, source = excluded.source, added_at = excluded.added_at`,
		sessionID, key, entry.Value, nullString(entry.Source), entry.AddedAt)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `UPDATE sessions SET updated_at = ? WHERE session_id = ?`, now(), sessionID)
	return err
}

// RemoveContext deletes a context key without keeping history.
func (s *SQLStore) RemoveContext(ctx context.Context, sessionID, key string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM session_context WHERE session_id = ? AND ctx_key = ?`, sessionID, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) loadContext(ctx context.Context, sessionID string) (map[string]domain.ContextEntry, error) {
	rows, err := s.query(ctx,
		`SELECT ctx_key, value, source, added_at FROM session_context WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.ContextEntry)
	for rows.Next() {
		var key string
		var entry domain.ContextEntry
		var source sql.NullString
		if err := rows.Scan(&key, &entry.Value, &source, &entry.AddedAt); err != nil {
			return nil, err
		}
		entry.Source = source.String
		out[key] = entry
	}
	return out, rows.Err()
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}
