// Package duel races provider/model pairs on the same eye and prompt.
package duel

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/thirdeye/internal/domain"
	"github.com/xiaot623/thirdeye/internal/executor"
	"github.com/xiaot623/thirdeye/internal/metrics"
)

// Duel size limits.
const (
	MinLegs       = 2
	MaxLegs       = 4
	MaxIterations = 50
)

// LegRunner runs an eye against one explicit target.
type LegRunner interface {
	RunTarget(ctx context.Context, eye domain.Eye, input string, target domain.Target) (*executor.Result, error)
}

// Store persists duel records.
type Store interface {
	CreateDuel(ctx context.Context, duel *domain.DuelRun) error
	UpdateDuel(ctx context.Context, duel *domain.DuelRun) error
	GetDuel(ctx context.Context, duelID string) (*domain.DuelRun, error)
	ListDuelsByStatus(ctx context.Context, statuses ...domain.DuelStatus) ([]domain.DuelRun, error)
}

// Options configures a Runner.
type Options struct {
	// LegTimeout bounds each leg. Zero disables the bound.
	LegTimeout time.Duration
	// OnUpdate receives a snapshot after every persisted change.
	OnUpdate func(run domain.DuelRun)
}

// Runner executes synchronous races and supervises background duels.
type Runner struct {
	store Store
	legs  LegRunner
	opts  Options

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new Runner.
func New(store Store, legs LegRunner, opts Options) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:   store,
		legs:    legs,
		opts:    opts,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// RunDuel races 2-4 configurations concurrently and returns the ranked record.
// A failed leg is scored 0 with verdict REJECTED and never fails the duel.
func (r *Runner) RunDuel(ctx context.Context, req domain.DuelRequest) (*domain.DuelRun, error) {
	if req.Eye == "" {
		return nil, domain.InvalidRequest("eye is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, domain.InvalidRequest("prompt is required")
	}
	if len(req.Configs) < MinLegs || len(req.Configs) > MaxLegs {
		return nil, domain.InvalidRequest("a duel needs %d to %d configs, got %d", MinLegs, MaxLegs, len(req.Configs))
	}
	configs, err := labelConfigs(req.Configs)
	if err != nil {
		return nil, err
	}

	run := &domain.DuelRun{
		DuelID:  uuid.New().String(),
		Mode:    domain.DuelModeRace,
		Eye:     req.Eye,
		Prompt:  req.Prompt,
		Configs: configs,
		Results: make([]domain.DuelLegResult, len(configs)),
		Status:  domain.DuelStatusRunning,
	}
	for i, c := range configs {
		run.Results[i] = domain.DuelLegResult{Label: c.Label, Provider: c.Provider, Model: c.Model}
	}
	if err := r.store.CreateDuel(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create duel: %w", err)
	}
	r.notify(run)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(len(configs))
	for i, c := range configs {
		g.Go(func() error {
			leg := r.runLeg(ctx, run.Eye, run.Prompt, c)
			mu.Lock()
			defer mu.Unlock()
			run.Results[i] = leg
			r.persist(ctx, run)
			return nil
		})
	}
	_ = g.Wait()

	run.Ranking = Rank(run.Results)
	run.Status = domain.DuelStatusCompleted
	if err := r.store.UpdateDuel(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to update duel: %w", err)
	}
	r.notify(run)
	log.Printf("INFO: duel %s completed, ranking %v", run.DuelID, run.Ranking)
	return run, nil
}

// Get returns a duel record.
func (r *Runner) Get(ctx context.Context, duelID string) (*domain.DuelRun, error) {
	run, err := r.store.GetDuel(ctx, duelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get duel: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("duel %s: %w", duelID, domain.ErrNotFound)
	}
	return run, nil
}

// runLeg runs one leg under the leg timeout and scores it.
func (r *Runner) runLeg(ctx context.Context, eye domain.Eye, input string, c domain.DuelConfig) domain.DuelLegResult {
	legCtx := ctx
	if r.opts.LegTimeout > 0 {
		var cancel context.CancelFunc
		legCtx, cancel = context.WithTimeout(ctx, r.opts.LegTimeout)
		defer cancel()
	}

	leg := domain.DuelLegResult{Label: c.Label, Provider: c.Provider, Model: c.Model, Done: true}
	start := time.Now()
	res, err := r.legs.RunTarget(legCtx, eye, input, c.Target())
	leg.LatencyMs = time.Since(start).Milliseconds()
	if res != nil {
		leg.LatencyMs = res.LatencyMs
		leg.TokensIn = res.TokensIn
		leg.TokensOut = res.TokensOut
	}
	if err != nil {
		metrics.DuelLegs.WithLabelValues("error").Inc()
		log.Printf("WARN: duel leg %s (%s) failed: %v", c.Label, c.Target(), err)
		leg.Verdict = domain.CodeRejected
		leg.Error = err.Error()
		leg.Score = 0
		return leg
	}

	metrics.DuelLegs.WithLabelValues("ok").Inc()
	leg.Output = res.Envelope
	leg.Verdict = res.Envelope.Code
	if c, ok := res.Envelope.Confidence(); ok {
		leg.Confidence = &c
	}
	leg.Score = Score(leg.Verdict, leg.Confidence, leg.LatencyMs)
	return leg
}

func (r *Runner) persist(ctx context.Context, run *domain.DuelRun) {
	if err := r.store.UpdateDuel(ctx, run); err != nil {
		log.Printf("ERROR: failed to persist duel %s: %v", run.DuelID, err)
		return
	}
	r.notify(run)
}

func (r *Runner) notify(run *domain.DuelRun) {
	if r.opts.OnUpdate == nil {
		return
	}
	snapshot := *run
	snapshot.Results = append([]domain.DuelLegResult(nil), run.Results...)
	snapshot.Ranking = append([]string(nil), run.Ranking...)
	if run.Summary != nil {
		s := *run.Summary
		snapshot.Summary = &s
	}
	r.opts.OnUpdate(snapshot)
}

// labelConfigs fills default labels and rejects incomplete or duplicate entries.
func labelConfigs(in []domain.DuelConfig) ([]domain.DuelConfig, error) {
	out := make([]domain.DuelConfig, len(in))
	seen := make(map[string]bool, len(in))
	for i, c := range in {
		if c.Provider == "" || c.Model == "" {
			return nil, domain.InvalidRequest("config %d needs provider and model", i)
		}
		if c.Label == "" {
			c.Label = c.Target().String()
		}
		if seen[c.Label] {
			c.Label = fmt.Sprintf("%s#%d", c.Label, i+1)
		}
		seen[c.Label] = true
		out[i] = c
	}
	return out, nil
}
