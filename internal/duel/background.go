package duel

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/xiaot623/thirdeye/internal/domain"
	"github.com/xiaot623/thirdeye/internal/metrics"
)

const orphanError = "interrupted by server restart"

// StartBackground persists a pending A/B duel and runs it on a supervised goroutine.
// The returned record is the pending snapshot.
func (r *Runner) StartBackground(ctx context.Context, req domain.BackgroundDuelRequest) (*domain.DuelRun, error) {
	if req.Eye == "" {
		return nil, domain.InvalidRequest("eye is required")
	}
	if req.Iterations < 1 || req.Iterations > MaxIterations {
		return nil, domain.InvalidRequest("iterations must be between 1 and %d", MaxIterations)
	}
	if req.ModelA.Label == "" {
		req.ModelA.Label = domain.WinnerModelA
	}
	if req.ModelB.Label == "" {
		req.ModelB.Label = domain.WinnerModelB
	}
	configs, err := labelConfigs([]domain.DuelConfig{req.ModelA, req.ModelB})
	if err != nil {
		return nil, err
	}
	if r.baseCtx.Err() != nil {
		return nil, fmt.Errorf("duel runner is shutting down")
	}

	run := &domain.DuelRun{
		DuelID:     uuid.New().String(),
		Mode:       domain.DuelModeBackground,
		Eye:        req.Eye,
		Prompt:     req.Input,
		Configs:    configs,
		Results:    []domain.DuelLegResult{},
		Status:     domain.DuelStatusPending,
		Iterations: req.Iterations,
	}
	if err := r.store.CreateDuel(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create duel: %w", err)
	}
	pending := *run
	r.notify(run)

	r.wg.Add(1)
	go r.supervise(run)

	log.Printf("INFO: background duel %s started: %s vs %s x%d", run.DuelID, configs[0].Target(), configs[1].Target(), run.Iterations)
	return &pending, nil
}

// supervise owns the run record until it reaches a terminal state.
func (r *Runner) supervise(run *domain.DuelRun) {
	defer r.wg.Done()
	metrics.BackgroundDuels.Inc()
	defer metrics.BackgroundDuels.Dec()

	ctx := r.baseCtx
	defer func() {
		if p := recover(); p != nil {
			log.Printf("ERROR: background duel %s panicked: %v", run.DuelID, p)
			r.fail(run, fmt.Sprintf("panic: %v", p))
		}
	}()

	run.Status = domain.DuelStatusRunning
	r.persist(ctx, run)

	var a, b Tally
	rounds := 0
	for i := 0; i < run.Iterations; i++ {
		if ctx.Err() != nil {
			r.fail(run, "cancelled: "+ctx.Err().Error())
			return
		}
		for side, c := range run.Configs {
			leg := r.runLeg(ctx, run.Eye, run.Prompt, c)
			succeeded := leg.Error == ""
			approved := succeeded && leg.Output.IsApproval()
			if side == 0 {
				a.Observe(approved, succeeded, leg.LatencyMs)
			} else {
				b.Observe(approved, succeeded, leg.LatencyMs)
			}
			run.Results = append(run.Results, leg)
		}
		rounds++
		run.Summary = summarize(&a, &b, rounds)
		r.persist(ctx, run)
	}
	if ctx.Err() != nil {
		r.fail(run, "cancelled: "+ctx.Err().Error())
		return
	}

	run.Status = domain.DuelStatusCompleted
	run.Ranking = winnerRanking(run)
	r.persist(context.Background(), run)
	log.Printf("INFO: background duel %s completed, winner %s", run.DuelID, run.Summary.Winner)
}

func (r *Runner) fail(run *domain.DuelRun, reason string) {
	run.Status = domain.DuelStatusFailed
	run.Error = reason
	// The base context may already be cancelled.
	r.persist(context.Background(), run)
}

func winnerRanking(run *domain.DuelRun) []string {
	a, b := run.Configs[0].Label, run.Configs[1].Label
	if run.Summary != nil && run.Summary.Winner == domain.WinnerModelB {
		return []string{b, a}
	}
	return []string{a, b}
}

// RecoverOrphans marks duels left pending or running by a previous process as failed.
func (r *Runner) RecoverOrphans(ctx context.Context) (int, error) {
	orphans, err := r.store.ListDuelsByStatus(ctx, domain.DuelStatusPending, domain.DuelStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to list orphaned duels: %w", err)
	}
	for i := range orphans {
		d := &orphans[i]
		d.Status = domain.DuelStatusFailed
		d.Error = orphanError
		if err := r.store.UpdateDuel(ctx, d); err != nil {
			return i, fmt.Errorf("failed to fail duel %s: %w", d.DuelID, err)
		}
		log.Printf("WARN: marked orphaned duel %s as failed", d.DuelID)
	}
	return len(orphans), nil
}

// Wait blocks until every background duel has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels background duels and waits for them, bounded by ctx.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
