package service

import (
	"context"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// RunDuel races several provider/model pairs on one prompt and waits for the ranking.
func (s *Service) RunDuel(ctx context.Context, req domain.DuelRequest) (*domain.DuelRun, error) {
	if !s.registry.Has(req.Eye) {
		return nil, domain.InvalidRequest("unknown eye %q", req.Eye)
	}
	return s.duels.RunDuel(ctx, req)
}

// StartBackgroundDuel launches an A/B duel and returns as soon as it is recorded.
func (s *Service) StartBackgroundDuel(ctx context.Context, req domain.BackgroundDuelRequest) (*domain.BackgroundDuelResponse, error) {
	if !s.registry.Has(req.Eye) {
		return nil, domain.InvalidRequest("unknown eye %q", req.Eye)
	}
	run, err := s.duels.StartBackground(ctx, req)
	if err != nil {
		return nil, err
	}
	return &domain.BackgroundDuelResponse{DuelID: run.DuelID, Status: run.Status}, nil
}

// GetDuel returns a duel record.
func (s *Service) GetDuel(ctx context.Context, duelID string) (*domain.DuelRun, error) {
	return s.duels.Get(ctx, duelID)
}
