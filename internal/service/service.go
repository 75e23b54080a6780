// Package service wires the pipeline components behind one facade used by every transport.
package service

import (
	"context"
	"log"

	"github.com/xiaot623/thirdeye/internal/adapter/llm"
	"github.com/xiaot623/thirdeye/internal/config"
	"github.com/xiaot623/thirdeye/internal/domain"
	"github.com/xiaot623/thirdeye/internal/duel"
	"github.com/xiaot623/thirdeye/internal/executor"
	"github.com/xiaot623/thirdeye/internal/eyes"
	"github.com/xiaot623/thirdeye/internal/hub"
	"github.com/xiaot623/thirdeye/internal/orderguard"
	"github.com/xiaot623/thirdeye/internal/policy"
	"github.com/xiaot623/thirdeye/internal/repository"
	"github.com/xiaot623/thirdeye/internal/router"
)

// Service is the pipeline facade.
type Service struct {
	store    repository.Store
	config   *config.Config
	registry *eyes.Registry
	provider llm.Provider
	hub      *hub.Hub

	guard    *orderguard.Guard
	executor *executor.Executor
	router   *router.Router
	duels    *duel.Runner
}

// New creates a Service. policyEngine may be nil to skip admission checks.
func New(store repository.Store, provider llm.Provider, h *hub.Hub, cfg *config.Config, policyEngine *policy.Engine) *Service {
	s := &Service{
		store:    store,
		config:   cfg,
		registry: eyes.DefaultRegistry,
		provider: provider,
		hub:      h,
	}

	var admission orderguard.Admission
	if policyEngine != nil {
		admission = policyEngine
	}
	s.guard = orderguard.New(store, admission, s.registry, orderguard.Options{
		StrictOrder:  cfg.StrictOrder,
		DefaultRoute: cfg.DefaultRoute,
		DisabledEyes: cfg.DisabledEyes,
	})
	s.executor = executor.New(store, store, provider, cfg.ProviderTimeout)
	s.router = router.New(store, s)
	s.duels = duel.New(store, s.executor, duel.Options{
		LegTimeout: cfg.LegTimeout,
		OnUpdate:   s.duelUpdated,
	})
	return s
}

// Hub returns the broadcast hub.
func (s *Service) Hub() *hub.Hub {
	return s.hub
}

// RecoverOrphans fails duels left unfinished by a previous process.
func (s *Service) RecoverOrphans(ctx context.Context) (int, error) {
	return s.duels.RecoverOrphans(ctx)
}

// Shutdown stops background duels.
func (s *Service) Shutdown(ctx context.Context) error {
	if err := s.duels.Shutdown(ctx); err != nil {
		log.Printf("WARN: background duels did not stop in time: %v", err)
		return err
	}
	return nil
}

// ListEyes returns the registered eyes.
func (s *Service) ListEyes() []domain.EyeDescriptor {
	return s.registry.List()
}

// ListProviderModels lists the models a provider exposes.
func (s *Service) ListProviderModels(ctx context.Context, provider string) ([]llm.Model, error) {
	return s.provider.ListModels(ctx, provider)
}
