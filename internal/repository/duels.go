package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// CreateDuel stores a new duel record.
func (s *SQLStore) CreateDuel(ctx context.Context, duel *domain.DuelRun) error {
	if duel.CreatedAt.IsZero() {
		duel.CreatedAt = now()
	}
	duel.CreatedAt = duel.CreatedAt.UTC()
	duel.UpdatedAt = duel.CreatedAt

	_, err := s.exec(ctx,
		`INSERT INTO duels (duel_id, mode, eye, prompt, configs, results, ranking, status, iterations, summary, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		duel.DuelID, string(duel.Mode), string(duel.Eye), duel.Prompt, marshalString(duel.Configs),
		marshalString(duel.Results), marshalString(duel.Ranking), string(duel.Status), duel.Iterations,
		summaryString(duel.Summary), nullString(duel.Error), duel.CreatedAt, duel.UpdatedAt)
	return err
}

// UpdateDuel persists the mutable fields of a duel.
func (s *SQLStore) UpdateDuel(ctx context.Context, duel *domain.DuelRun) error {
	duel.UpdatedAt = now()
	res, err := s.exec(ctx,
		`UPDATE duels SET results = ?, ranking = ?, status = ?, iterations = ?, summary = ?, error = ?, updated_at = ? WHERE duel_id = ?`,
		marshalString(duel.Results), marshalString(duel.Ranking), string(duel.Status), duel.Iterations,
		summaryString(duel.Summary), nullString(duel.Error), duel.UpdatedAt, duel.DuelID)
	if err != nil {
		return err
	}
	return requireAffected(res, "duel", duel.DuelID)
}

const duelColumns = `duel_id, mode, eye, prompt, configs, results, ranking, status, iterations, summary, error, created_at, updated_at`

func scanDuel(row rowScanner) (*domain.DuelRun, error) {
	var d domain.DuelRun
	var mode, eye, status string
	var prompt, results, ranking, summary, errText sql.NullString
	var configs string
	if err := row.Scan(&d.DuelID, &mode, &eye, &prompt, &configs, &results, &ranking, &status,
		&d.Iterations, &summary, &errText, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Mode = domain.DuelMode(mode)
	d.Eye = domain.Eye(eye)
	d.Status = domain.DuelStatus(status)
	d.Prompt = prompt.String
	d.Error = errText.String

	if err := json.Unmarshal([]byte(configs), &d.Configs); err != nil {
		return nil, fmt.Errorf("duel %s has invalid configs: %w", d.DuelID, err)
	}
	if results.Valid {
		if err := json.Unmarshal([]byte(results.String), &d.Results); err != nil {
			return nil, fmt.Errorf("duel %s has invalid results: %w", d.DuelID, err)
		}
	}
	if ranking.Valid {
		if err := json.Unmarshal([]byte(ranking.String), &d.Ranking); err != nil {
			return nil, fmt.Errorf("duel %s has invalid ranking: %w", d.DuelID, err)
		}
	}
	if summary.Valid && summary.String != "" {
		d.Summary = &domain.DuelSummary{}
		if err := json.Unmarshal([]byte(summary.String), d.Summary); err != nil {
			return nil, fmt.Errorf("duel %s has invalid summary: %w", d.DuelID, err)
		}
	}
	return &d, nil
}

// GetDuel returns a duel by ID, or nil.
func (s *SQLStore) GetDuel(ctx context.Context, duelID string) (*domain.DuelRun, error) {
	d, err := scanDuel(s.queryRow(ctx, `SELECT `+duelColumns+` FROM duels WHERE duel_id = ?`, duelID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

// ListDuelsByStatus returns duels in any of the given statuses.
func (s *SQLStore) ListDuelsByStatus(ctx context.Context, statuses ...domain.DuelStatus) ([]domain.DuelRun, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	rows, err := s.query(ctx,
		`SELECT `+duelColumns+` FROM duels WHERE status IN (`+placeholders(len(statuses))+`) ORDER BY created_at ASC`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var duels []domain.DuelRun
	for rows.Next() {
		d, err := scanDuel(rows)
		if err != nil {
			return nil, err
		}
		duels = append(duels, *d)
	}
	return duels, rows.Err()
}

func summaryString(summary *domain.DuelSummary) sql.NullString {
	if summary == nil {
		return sql.NullString{}
	}
	return nullString(marshalString(summary))
}
