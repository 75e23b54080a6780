package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// CreateSession creates a session, optionally bound to a route.
func (s *Service) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (*domain.Session, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	route := req.Route
	routeName := req.RouteName
	if len(route) == 0 && routeName != "" {
		def, err := s.store.GetRoute(ctx, routeName)
		if err != nil {
			return nil, fmt.Errorf("failed to get route: %w", err)
		}
		if def == nil {
			return nil, domain.InvalidRequest("unknown route %q", routeName)
		}
		route = def.Steps
	}
	for _, eye := range route {
		if !s.registry.Has(eye) {
			return nil, domain.InvalidRequest("unknown eye %q in route", eye)
		}
	}

	existing, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if existing != nil {
		return nil, domain.InvalidRequest("session %s already exists", sessionID)
	}

	now := time.Now().UTC()
	session := &domain.Session{
		SessionID: sessionID,
		Status:    domain.SessionStatusActive,
		Route:     route,
		RouteName: routeName,
		Context:   make(map[string]domain.ContextEntry, len(req.Context)),
	}
	for k, v := range req.Context {
		session.Context[k] = domain.ContextEntry{Value: v, Source: "user", AddedAt: now}
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.emit(ctx, sessionID, domain.EventTypeSessionCreated, session)
	return session, nil
}

// GetSession returns a session or ErrNotFound.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	return session, nil
}

// ListSessions returns the most recently updated sessions.
func (s *Service) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	return s.store.ListSessions(ctx, limit)
}

// GetPipelineProgress returns the derived pipeline view of a session.
func (s *Service) GetPipelineProgress(ctx context.Context, sessionID string) (*domain.PipelineProgress, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.guard.Progress(ctx, sessionID)
}

// Status returns a session together with its pipeline progress.
func (s *Service) Status(ctx context.Context, sessionID string) (*domain.StatusResponse, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	progress, err := s.guard.Progress(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &domain.StatusResponse{Session: session, PipelineProgress: progress}, nil
}

// AddContext sets one context key. The last writer wins.
func (s *Service) AddContext(ctx context.Context, sessionID string, req domain.AddContextRequest) error {
	if strings.TrimSpace(req.Key) == "" {
		return domain.InvalidRequest("key is required")
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}
	source := req.Source
	if source == "" {
		source = "user"
	}
	entry := domain.ContextEntry{Value: req.Value, Source: source, AddedAt: time.Now().UTC()}
	if err := s.store.SetContext(ctx, sessionID, req.Key, entry); err != nil {
		return fmt.Errorf("failed to set context: %w", err)
	}
	s.emit(ctx, sessionID, domain.EventTypeContextUpdated, map[string]interface{}{
		"key":    req.Key,
		"value":  req.Value,
		"source": source,
	})
	return nil
}

// RemoveContext deletes one context key.
func (s *Service) RemoveContext(ctx context.Context, sessionID, key string) error {
	removed, err := s.store.RemoveContext(ctx, sessionID, key)
	if err != nil {
		return fmt.Errorf("failed to remove context: %w", err)
	}
	if !removed {
		return fmt.Errorf("context %s/%s: %w", sessionID, key, domain.ErrNotFound)
	}
	s.emit(ctx, sessionID, domain.EventTypeContextUpdated, map[string]interface{}{
		"key":     key,
		"removed": true,
	})
	return nil
}

// KillSession blocks every further eye invocation for the session.
func (s *Service) KillSession(ctx context.Context, sessionID string) error {
	return s.setStatus(ctx, sessionID, domain.SessionStatusKilled)
}

// CompleteSession marks a session completed.
func (s *Service) CompleteSession(ctx context.Context, sessionID string) error {
	return s.setStatus(ctx, sessionID, domain.SessionStatusCompleted)
}

// setStatus applies a lifecycle transition. Repeating the current status is a no-op.
func (s *Service) setStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	if session.Status == status {
		return nil
	}
	if !session.Status.CanTransitionTo(status) {
		return domain.InvalidRequest("session %s is %s and cannot become %s", sessionID, session.Status, status)
	}
	ok, err := s.store.TransitionSessionStatus(ctx, sessionID, session.Status, status)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if !ok {
		return domain.InvalidRequest("session %s changed status concurrently, retry", sessionID)
	}
	s.emit(ctx, sessionID, domain.EventTypeSessionStatus, map[string]string{"status": string(status)})
	return nil
}

// CleanupSessions deletes sessions created before the cutoff, with their context, progress and events.
func (s *Service) CleanupSessions(ctx context.Context, before time.Time) (int64, error) {
	if before.IsZero() {
		return 0, domain.InvalidRequest("before is required")
	}
	n, err := s.store.DeleteSessionsBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return n, nil
}
