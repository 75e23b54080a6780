package repository

import (
	"context"
	"fmt"

	"github.com/xiaot623/thirdeye/internal/config"
	"github.com/xiaot623/thirdeye/internal/domain"
)

// SeedStats reports how many records a seed run inserted.
type SeedStats struct {
	Personas int
	Routing  int
	Routes   int
}

// ApplySeed inserts seed records that are not already present.
// Existing personas, routing entries and routes are left untouched.
func ApplySeed(ctx context.Context, store Store, seed *config.Seed) (SeedStats, error) {
	var stats SeedStats
	for _, p := range seed.Personas {
		active, err := store.GetActivePersona(ctx, domain.Eye(p.Eye))
		if err != nil {
			return stats, fmt.Errorf("failed to check persona %s: %w", p.Eye, err)
		}
		if active != nil {
			continue
		}
		if err := store.CreatePersona(ctx, &domain.Persona{Eye: domain.Eye(p.Eye), Content: p.Content}); err != nil {
			return stats, fmt.Errorf("failed to seed persona %s: %w", p.Eye, err)
		}
		stats.Personas++
	}

	for _, r := range seed.Routing {
		existing, err := store.GetRouting(ctx, domain.Eye(r.Eye))
		if err != nil {
			return stats, fmt.Errorf("failed to check routing %s: %w", r.Eye, err)
		}
		if existing != nil {
			continue
		}
		entry := &domain.RoutingEntry{
			Eye:              domain.Eye(r.Eye),
			PrimaryProvider:  r.PrimaryProvider,
			PrimaryModel:     r.PrimaryModel,
			FallbackProvider: r.FallbackProvider,
			FallbackModel:    r.FallbackModel,
			Temperature:      r.Temperature,
			MaxTokens:        r.MaxTokens,
		}
		if err := store.UpsertRouting(ctx, entry); err != nil {
			return stats, fmt.Errorf("failed to seed routing %s: %w", r.Eye, err)
		}
		stats.Routing++
	}

	for _, r := range seed.Routes {
		existing, err := store.GetRoute(ctx, r.Name)
		if err != nil {
			return stats, fmt.Errorf("failed to check route %s: %w", r.Name, err)
		}
		if existing != nil {
			continue
		}
		route := &domain.Route{
			Name:  r.Name,
			Steps: domain.StringsToEyes(r.Steps),
		}
		if len(r.Entry) > 0 {
			route.Entry = domain.StringsToEyes(r.Entry)
		}
		if err := store.UpsertRoute(ctx, route); err != nil {
			return stats, fmt.Errorf("failed to seed route %s: %w", r.Name, err)
		}
		stats.Routes++
	}
	return stats, nil
}
