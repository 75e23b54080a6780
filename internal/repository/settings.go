package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// CreatePersona stores a new persona version and makes it the only active one for its eye.
func (s *SQLStore) CreatePersona(ctx context.Context, persona *domain.Persona) error {
	if persona.CreatedAt.IsZero() {
		persona.CreatedAt = now()
	}
	persona.CreatedAt = persona.CreatedAt.UTC()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var version int
		if err := tx.QueryRowContext(ctx,
			s.rebind(`SELECT COALESCE(MAX(version), 0) + 1 FROM personas WHERE eye = ?`),
			string(persona.Eye)).Scan(&version); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			s.rebind(`UPDATE personas SET active = ? WHERE eye = ?`), false, string(persona.Eye)); err != nil {
			return fmt.Errorf("failed to deactivate personas: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			s.rebind(`INSERT INTO personas (eye, version, content, active, created_at) VALUES (?, ?, ?, ?, ?)`),
			string(persona.Eye), version, persona.Content, true, persona.CreatedAt); err != nil {
			return err
		}
		persona.Version = version
		persona.Active = true
		return nil
	})
}

// GetActivePersona returns the active persona for an eye, or nil.
func (s *SQLStore) GetActivePersona(ctx context.Context, eye domain.Eye) (*domain.Persona, error) {
	var p domain.Persona
	var name string
	err := s.queryRow(ctx,
		`SELECT eye, version, content, active, created_at FROM personas WHERE eye = ? AND active = ? ORDER BY version DESC LIMIT 1`,
		string(eye), true).Scan(&name, &p.Version, &p.Content, &p.Active, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Eye = domain.Eye(name)
	return &p, nil
}

// ListPersonaVersions returns every version for an eye, newest first.
func (s *SQLStore) ListPersonaVersions(ctx context.Context, eye domain.Eye) ([]domain.Persona, error) {
	rows, err := s.query(ctx,
		`SELECT eye, version, content, active, created_at FROM personas WHERE eye = ? ORDER BY version DESC`,
		string(eye))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var personas []domain.Persona
	for rows.Next() {
		var p domain.Persona
		var name string
		if err := rows.Scan(&name, &p.Version, &p.Content, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Eye = domain.Eye(name)
		personas = append(personas, p)
	}
	return personas, rows.Err()
}

// UpsertRouting creates or replaces the routing entry for an eye.
func (s *SQLStore) UpsertRouting(ctx context.Context, entry *domain.RoutingEntry) error {
	var temperature sql.NullFloat64
	if entry.Temperature != nil {
		temperature = sql.NullFloat64{Float64: *entry.Temperature, Valid: true}
	}
	var maxTokens sql.NullInt64
	if entry.MaxTokens != nil {
		maxTokens = sql.NullInt64{Int64: int64(*entry.MaxTokens), Valid: true}
	}
	_, err := s.exec(ctx,
		`INSERT INTO routing (eye, primary_provider, primary_model, fallback_provider, fallback_model, temperature, max_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (eye) DO UPDATE SET
			primary_provider = excluded.primary_provider,
			primary_model = excluded.primary_model,
			fallback_provider = excluded.fallback_provider,
			fallback_model = excluded.fallback_model,
			temperature = excluded.temperature,
			max_tokens = excluded.max_tokens`,
		string(entry.Eye), entry.PrimaryProvider, entry.PrimaryModel,
		nullString(entry.FallbackProvider), nullString(entry.FallbackModel), temperature, maxTokens)
	return err
}

const routingColumns = `eye, primary_provider, primary_model, fallback_provider, fallback_model, temperature, max_tokens`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRouting(row rowScanner) (*domain.RoutingEntry, error) {
	var r domain.RoutingEntry
	var eye string
	var fbProvider, fbModel sql.NullString
	var temperature sql.NullFloat64
	var maxTokens sql.NullInt64
	if err := row.Scan(&eye, &r.PrimaryProvider, &r.PrimaryModel, &fbProvider, &fbModel, &temperature, &maxTokens); err != nil {
		return nil, err
	}
	r.Eye = domain.Eye(eye)
	r.FallbackProvider = fbProvider.String
	r.FallbackModel = fbModel.String
	if temperature.Valid {
		t := temperature.Float64
		r.Temperature = &t
	}
	if maxTokens.Valid {
		m := int(maxTokens.Int64)
		r.MaxTokens = &m
	}
	return &r, nil
}

// GetRouting returns the routing entry for an eye, or nil.
func (s *SQLStore) GetRouting(ctx context.Context, eye domain.Eye) (*domain.RoutingEntry, error) {
	r, err := scanRouting(s.queryRow(ctx, `SELECT `+routingColumns+` FROM routing WHERE eye = ?`, string(eye)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListRouting returns all routing entries.
func (s *SQLStore) ListRouting(ctx context.Context) ([]domain.RoutingEntry, error) {
	rows, err := s.query(ctx, `SELECT `+routingColumns+` FROM routing ORDER BY eye`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.RoutingEntry
	for rows.Next() {
		r, err := scanRouting(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *r)
	}
	return entries, rows.Err()
}

// UpsertRoute creates or replaces a named route.
func (s *SQLStore) UpsertRoute(ctx context.Context, route *domain.Route) error {
	route.UpdatedAt = now()
	var entry sql.NullString
	if len(route.Entry) > 0 {
		entry = nullString(marshalString(route.Entry))
	}
	_, err := s.exec(ctx,
		`INSERT INTO routes (name, steps, entry, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET steps = excluded.steps, entry = excluded.entry, updated_at = excluded.updated_at`,
		route.Name, marshalString(route.Steps), entry, route.UpdatedAt)
	return err
}

func scanRoute(row rowScanner) (*domain.Route, error) {
	var r domain.Route
	var steps string
	var entry sql.NullString
	if err := row.Scan(&r.Name, &steps, &entry, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(steps), &r.Steps); err != nil {
		return nil, fmt.Errorf("route %s has invalid steps: %w", r.Name, err)
	}
	r.Entry = unmarshalEyes(entry)
	return &r, nil
}

// GetRoute returns a named route, or nil.
func (s *SQLStore) GetRoute(ctx context.Context, name string) (*domain.Route, error) {
	r, err := scanRoute(s.queryRow(ctx, `SELECT name, steps, entry, updated_at FROM routes WHERE name = ?`, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListRoutes returns all named routes.
func (s *SQLStore) ListRoutes(ctx context.Context) ([]domain.Route, error) {
	rows, err := s.query(ctx, `SELECT name, steps, entry, updated_at FROM routes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []domain.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, *r)
	}
	return routes, rows.Err()
}
