package duel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/thirdeye/internal/domain"
	"github.com/xiaot623/thirdeye/internal/executor"
	"github.com/xiaot623/thirdeye/internal/testutil"
)

type legFunc func(ctx context.Context) (*executor.Result, error)

type fakeLegs struct {
	byTarget map[string]legFunc
}

func (f *fakeLegs) RunTarget(ctx context.Context, eye domain.Eye, input string, target domain.Target) (*executor.Result, error) {
	fn, ok := f.byTarget[target.String()]
	if !ok {
		return nil, errors.New("unknown target")
	}
	return fn(ctx)
}

func answer(eye domain.Eye, code string, confidence float64, latencyMs int64) legFunc {
	return func(ctx context.Context) (*executor.Result, error) {
		env := testutil.Envelope(eye, code != domain.CodeRejected, code)
		env.Data = map[string]interface{}{"confidence": confidence}
		return &executor.Result{Envelope: env, LatencyMs: latencyMs, TokensIn: 10, TokensOut: 20}, nil
	}
}

func failing(latencyMs int64) legFunc {
	return func(ctx context.Context) (*executor.Result, error) {
		return &executor.Result{LatencyMs: latencyMs}, errors.New("upstream 500")
	}
}

func ptr(f float64) *float64 { return &f }

func TestScoreBands(t *testing.T) {
	assert.Equal(t, 95.0, Score(domain.CodeApproved, ptr(80), 500))
	assert.Equal(t, 57.5, Score(domain.CodeNeedClarification, nil, 1500))
	assert.Equal(t, 30.0, Score(domain.CodeRejected, ptr(100), 6000))
	assert.Equal(t, 100.0, Score(domain.CodeOK, ptr(150), 999))
	assert.Equal(t, 15.0, Score(domain.CodeError, ptr(-3), 2500))

	assert.Equal(t, 25.0, LatencyScore(0))
	assert.Equal(t, 20.0, LatencyScore(1000))
	assert.Equal(t, 15.0, LatencyScore(2999))
	assert.Equal(t, 10.0, LatencyScore(4999))
	assert.Equal(t, 5.0, LatencyScore(5000))
}

func TestScoreIsDeterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		require.Equal(t, 82.5, Score(domain.CodeApproved, nil, 1200))
	}
}

func TestRankIsStableDescending(t *testing.T) {
	results := []domain.DuelLegResult{
		{Label: "a", Score: 40},
		{Label: "b", Score: 90},
		{Label: "c", Score: 40},
		{Label: "d", Score: 0},
	}
	assert.Equal(t, []string{"b", "a", "c", "d"}, Rank(results))
}

func TestDetermineWinner(t *testing.T) {
	var a, b Tally
	a.Observe(true, true, 100)
	b.Observe(false, true, 50)
	assert.Equal(t, domain.WinnerModelA, DetermineWinner(&a, &b))

	var c, d Tally
	c.Observe(true, true, 100)
	d.Observe(true, true, 100)
	assert.Equal(t, domain.WinnerTie, DetermineWinner(&c, &d))

	var e, f Tally
	e.Observe(false, false, 0)
	f.Observe(false, true, 4000)
	assert.Equal(t, domain.WinnerModelB, DetermineWinner(&e, &f))
}

func TestRunDuelRanksLegsAndIsolatesFailures(t *testing.T) {
	store := testutil.NewTestStore(t)
	legs := &fakeLegs{byTarget: map[string]legFunc{
		"groq/llama":      answer(domain.EyeMangekyo, domain.CodeApproved, 90, 800),
		"openrouter/gpt":  answer(domain.EyeMangekyo, domain.CodeNeedsRevision, 70, 400),
		"ollama/qwen":     failing(30),
		"lmstudio/mistra": answer(domain.EyeMangekyo, domain.CodeApproved, 60, 2500),
	}}

	var mu sync.Mutex
	var updates []domain.DuelRun
	runner := New(store, legs, Options{LegTimeout: time.Second, OnUpdate: func(run domain.DuelRun) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, run)
	}})

	run, err := runner.RunDuel(context.Background(), domain.DuelRequest{
		Prompt: "review this diff",
		Eye:    domain.EyeMangekyo,
		Configs: []domain.DuelConfig{
			{Provider: "groq", Model: "llama"},
			{Provider: "openrouter", Model: "gpt"},
			{Provider: "ollama", Model: "qwen", Label: "local"},
			{Provider: "lmstudio", Model: "mistra"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DuelStatusCompleted, run.Status)
	assert.Equal(t, []string{"groq/llama", "lmstudio/mistra", "openrouter/gpt", "local"}, run.Ranking)

	failed := run.Results[2]
	assert.Equal(t, domain.CodeRejected, failed.Verdict)
	assert.Equal(t, 0.0, failed.Score)
	assert.Equal(t, "upstream 500", failed.Error)
	assert.Equal(t, 97.5, run.Results[0].Score)

	stored, err := runner.Get(context.Background(), run.DuelID)
	require.NoError(t, err)
	assert.Equal(t, run.Ranking, stored.Ranking)
	assert.Len(t, stored.Results, 4)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, updates, 6)
	assert.Equal(t, domain.DuelStatusCompleted, updates[len(updates)-1].Status)
}

func TestRunDuelValidation(t *testing.T) {
	runner := New(testutil.NewTestStore(t), &fakeLegs{}, Options{})
	ctx := context.Background()

	_, err := runner.RunDuel(ctx, domain.DuelRequest{Prompt: "p", Eye: domain.EyeJogan, Configs: []domain.DuelConfig{{Provider: "a", Model: "b"}}})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = runner.RunDuel(ctx, domain.DuelRequest{Prompt: "", Eye: domain.EyeJogan})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = runner.RunDuel(ctx, domain.DuelRequest{Prompt: "p", Eye: domain.EyeJogan, Configs: []domain.DuelConfig{{Provider: "a"}, {Provider: "b", Model: "c"}}})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestRunDuelLegTimeout(t *testing.T) {
	legs := &fakeLegs{byTarget: map[string]legFunc{
		"a/fast": answer(domain.EyeJogan, domain.CodeOK, 50, 10),
		"b/slow": func(ctx context.Context) (*executor.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}}
	runner := New(testutil.NewTestStore(t), legs, Options{LegTimeout: 20 * time.Millisecond})

	run, err := runner.RunDuel(context.Background(), domain.DuelRequest{
		Prompt:  "confirm scope",
		Eye:     domain.EyeJogan,
		Configs: []domain.DuelConfig{{Provider: "a", Model: "fast"}, {Provider: "b", Model: "slow"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/fast", "b/slow"}, run.Ranking)
	assert.Contains(t, run.Results[1].Error, "deadline exceeded")
}

func TestBackgroundDuelTieBreakOnLatency(t *testing.T) {
	store := testutil.NewTestStore(t)
	legs := &fakeLegs{byTarget: map[string]legFunc{
		"groq/llama":     answer(domain.EyeByakugan, domain.CodeApproved, 80, 900),
		"openrouter/gpt": answer(domain.EyeByakugan, domain.CodeApproved, 80, 1200),
	}}
	runner := New(store, legs, Options{})

	pending, err := runner.StartBackground(context.Background(), domain.BackgroundDuelRequest{
		Eye:        domain.EyeByakugan,
		ModelA:     domain.DuelConfig{Provider: "groq", Model: "llama"},
		ModelB:     domain.DuelConfig{Provider: "openrouter", Model: "gpt"},
		Input:      "final check",
		Iterations: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DuelStatusPending, pending.Status)

	runner.Wait()

	run, err := runner.Get(context.Background(), pending.DuelID)
	require.NoError(t, err)
	assert.Equal(t, domain.DuelStatusCompleted, run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 3, run.Summary.ApprovalsA)
	assert.Equal(t, 3, run.Summary.ApprovalsB)
	assert.Equal(t, 900.0, run.Summary.AvgLatencyA)
	assert.Equal(t, 1200.0, run.Summary.AvgLatencyB)
	assert.Equal(t, domain.WinnerModelA, run.Summary.Winner)
	assert.Len(t, run.Results, 6)
	assert.Equal(t, []string{domain.WinnerModelA, domain.WinnerModelB}, run.Ranking)
}

func TestBackgroundDuelFullTie(t *testing.T) {
	legs := &fakeLegs{byTarget: map[string]legFunc{
		"a/m": answer(domain.EyeJogan, domain.CodeOK, 50, 700),
		"b/m": answer(domain.EyeJogan, domain.CodeOK, 50, 700),
	}}
	runner := New(testutil.NewTestStore(t), legs, Options{})

	pending, err := runner.StartBackground(context.Background(), domain.BackgroundDuelRequest{
		Eye:        domain.EyeJogan,
		ModelA:     domain.DuelConfig{Provider: "a", Model: "m"},
		ModelB:     domain.DuelConfig{Provider: "b", Model: "m"},
		Iterations: 2,
	})
	require.NoError(t, err)
	runner.Wait()

	run, err := runner.Get(context.Background(), pending.DuelID)
	require.NoError(t, err)
	assert.Equal(t, domain.WinnerTie, run.Summary.Winner)
}

func TestBackgroundDuelRecoversFromPanic(t *testing.T) {
	legs := &fakeLegs{byTarget: map[string]legFunc{
		"a/m": func(ctx context.Context) (*executor.Result, error) { panic("boom") },
		"b/m": answer(domain.EyeJogan, domain.CodeOK, 50, 700),
	}}
	runner := New(testutil.NewTestStore(t), legs, Options{})

	pending, err := runner.StartBackground(context.Background(), domain.BackgroundDuelRequest{
		Eye:        domain.EyeJogan,
		ModelA:     domain.DuelConfig{Provider: "a", Model: "m"},
		ModelB:     domain.DuelConfig{Provider: "b", Model: "m"},
		Iterations: 1,
	})
	require.NoError(t, err)
	runner.Wait()

	run, err := runner.Get(context.Background(), pending.DuelID)
	require.NoError(t, err)
	assert.Equal(t, domain.DuelStatusFailed, run.Status)
	assert.Contains(t, run.Error, "panic")
}

func TestBackgroundDuelValidation(t *testing.T) {
	runner := New(testutil.NewTestStore(t), &fakeLegs{}, Options{})
	_, err := runner.StartBackground(context.Background(), domain.BackgroundDuelRequest{
		Eye:        domain.EyeJogan,
		ModelA:     domain.DuelConfig{Provider: "a", Model: "m"},
		ModelB:     domain.DuelConfig{Provider: "b", Model: "m"},
		Iterations: 0,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestShutdownCancelsBackgroundDuels(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	legs := &fakeLegs{byTarget: map[string]legFunc{
		"a/m": func(ctx context.Context) (*executor.Result, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return nil, ctx.Err()
		},
		"b/m": answer(domain.EyeJogan, domain.CodeOK, 50, 700),
	}}
	runner := New(testutil.NewTestStore(t), legs, Options{})

	pending, err := runner.StartBackground(context.Background(), domain.BackgroundDuelRequest{
		Eye:        domain.EyeJogan,
		ModelA:     domain.DuelConfig{Provider: "a", Model: "m"},
		ModelB:     domain.DuelConfig{Provider: "b", Model: "m"},
		Iterations: 5,
	})
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, runner.Shutdown(ctx))

	run, err := runner.Get(context.Background(), pending.DuelID)
	require.NoError(t, err)
	assert.Equal(t, domain.DuelStatusFailed, run.Status)
	assert.Contains(t, run.Error, "cancelled")
}

func TestRecoverOrphans(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()
	for _, st := range []domain.DuelStatus{domain.DuelStatusPending, domain.DuelStatusRunning, domain.DuelStatusCompleted} {
		require.NoError(t, store.CreateDuel(ctx, &domain.DuelRun{
			DuelID:  string(st),
			Mode:    domain.DuelModeBackground,
			Eye:     domain.EyeJogan,
			Configs: []domain.DuelConfig{{Provider: "a", Model: "m"}, {Provider: "b", Model: "m"}},
			Status:  st,
		}))
	}

	runner := New(store, &fakeLegs{}, Options{})
	n, err := runner.RecoverOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	run, err := runner.Get(ctx, "running")
	require.NoError(t, err)
	assert.Equal(t, domain.DuelStatusFailed, run.Status)
	assert.Equal(t, orphanError, run.Error)

	run, err = runner.Get(ctx, "completed")
	require.NoError(t, err)
	assert.Equal(t, domain.DuelStatusCompleted, run.Status)

	_, err = runner.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
