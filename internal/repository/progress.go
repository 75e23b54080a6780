package repository

import (
	"context"
	"database/sql"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// AppendProgress appends an entry to a session's progress log and assigns its sequence number.
func (s *SQLStore) AppendProgress(ctx context.Context, entry *domain.ProgressEntry) error {
	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = now()
	}
	entry.CompletedAt = entry.CompletedAt.UTC()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var seq int
		if err := tx.QueryRowContext(ctx,
			s.rebind(`SELECT COALESCE(MAX(seq), 0) + 1 FROM progress WHERE session_id = ?`),
			entry.SessionID).Scan(&seq); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			s.rebind(`INSERT INTO progress (session_id, seq, eye, outcome, completed_at, rerun, reason) VALUES (?, ?, ?, ?, ?, ?, ?)`),
			entry.SessionID, seq, string(entry.Eye), entry.Outcome, entry.CompletedAt, entry.Rerun, nullString(entry.Reason))
		if err != nil {
			return err
		}
		entry.Seq = seq
		return nil
	})
}

// ListProgress returns a session's progress log in append order.
func (s *SQLStore) ListProgress(ctx context.Context, sessionID string) ([]domain.ProgressEntry, error) {
	rows, err := s.query(ctx,
		`SELECT session_id, seq, eye, outcome, completed_at, rerun, reason FROM progress WHERE session_id = ? ORDER BY seq ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ProgressEntry
	for rows.Next() {
		var e domain.ProgressEntry
		var eye string
		var reason sql.NullString
		if err := rows.Scan(&e.SessionID, &e.Seq, &eye, &e.Outcome, &e.CompletedAt, &e.Rerun, &reason); err != nil {
			return nil, err
		}
		e.Eye = domain.Eye(eye)
		e.Reason = reason.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
