package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// ListRouting returns the provider routing table.
func (s *Service) ListRouting(ctx context.Context) ([]domain.RoutingEntry, error) {
	return s.store.ListRouting(ctx)
}

// GetRouting returns the routing entry for an eye.
func (s *Service) GetRouting(ctx context.Context, eye domain.Eye) (*domain.RoutingEntry, error) {
	entry, err := s.store.GetRouting(ctx, eye)
	if err != nil {
		return nil, fmt.Errorf("failed to get routing: %w", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("routing for %s: %w", eye, domain.ErrNotFound)
	}
	return entry, nil
}

// UpsertRouting replaces the routing entry for an eye.
func (s *Service) UpsertRouting(ctx context.Context, entry domain.RoutingEntry) (*domain.RoutingEntry, error) {
	if !s.registry.Has(entry.Eye) {
		return nil, domain.InvalidRequest("unknown eye %q", entry.Eye)
	}
	if entry.PrimaryProvider == "" || entry.PrimaryModel == "" {
		return nil, domain.InvalidRequest("primary_provider and primary_model are required")
	}
	if (entry.FallbackProvider == "") != (entry.FallbackModel == "") {
		return nil, domain.InvalidRequest("fallback_provider and fallback_model must be set together")
	}
	if entry.Temperature != nil && (*entry.Temperature < 0 || *entry.Temperature > 2) {
		return nil, domain.InvalidRequest("temperature must be between 0 and 2")
	}
	if entry.MaxTokens != nil && *entry.MaxTokens <= 0 {
		return nil, domain.InvalidRequest("max_tokens must be positive")
	}
	if err := s.store.UpsertRouting(ctx, &entry); err != nil {
		return nil, fmt.Errorf("failed to save routing: %w", err)
	}
	s.emit(ctx, "", domain.EventTypeSettingsChanged, map[string]interface{}{"kind": "routing", "eye": entry.Eye})
	return &entry, nil
}

// ListPersonaVersions returns every persona version for an eye, newest first.
func (s *Service) ListPersonaVersions(ctx context.Context, eye domain.Eye) ([]domain.Persona, error) {
	if !s.registry.Has(eye) {
		return nil, domain.InvalidRequest("unknown eye %q", eye)
	}
	return s.store.ListPersonaVersions(ctx, eye)
}

// GetActivePersona returns the active persona for an eye.
func (s *Service) GetActivePersona(ctx context.Context, eye domain.Eye) (*domain.Persona, error) {
	persona, err := s.store.GetActivePersona(ctx, eye)
	if err != nil {
		return nil, fmt.Errorf("failed to get persona: %w", err)
	}
	if persona == nil {
		return nil, fmt.Errorf("persona for %s: %w", eye, domain.ErrNotFound)
	}
	return persona, nil
}

// CreatePersonaVersion stores a new active persona version for an eye.
func (s *Service) CreatePersonaVersion(ctx context.Context, eye domain.Eye, req domain.PersonaRequest) (*domain.Persona, error) {
	if !s.registry.Has(eye) {
		return nil, domain.InvalidRequest("unknown eye %q", eye)
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, domain.InvalidRequest("content is required")
	}
	persona := &domain.Persona{Eye: eye, Content: req.Content}
	if err := s.store.CreatePersona(ctx, persona); err != nil {
		return nil, fmt.Errorf("failed to create persona: %w", err)
	}
	s.emit(ctx, "", domain.EventTypeSettingsChanged, map[string]interface{}{"kind": "persona", "eye": eye, "version": persona.Version})
	return persona, nil
}

// ListRoutes returns the named routes.
func (s *Service) ListRoutes(ctx context.Context) ([]domain.Route, error) {
	return s.store.ListRoutes(ctx)
}

// UpsertRoute creates or replaces a named route.
func (s *Service) UpsertRoute(ctx context.Context, route domain.Route) (*domain.Route, error) {
	if route.Name == "" {
		return nil, domain.InvalidRequest("name is required")
	}
	if len(route.Steps) == 0 {
		return nil, domain.InvalidRequest("steps must not be empty")
	}
	for _, eye := range append(append([]domain.Eye{}, route.Steps...), route.Entry...) {
		if !s.registry.Has(eye) {
			return nil, domain.InvalidRequest("unknown eye %q", eye)
		}
	}
	if err := s.store.UpsertRoute(ctx, &route); err != nil {
		return nil, fmt.Errorf("failed to save route: %w", err)
	}
	s.emit(ctx, "", domain.EventTypeSettingsChanged, map[string]interface{}{"kind": "route", "name": route.Name})
	return &route, nil
}
