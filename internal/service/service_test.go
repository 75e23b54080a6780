package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/thirdeye/internal/adapter/llm"
	"github.com/xiaot623/thirdeye/internal/config"
	"github.com/xiaot623/thirdeye/internal/domain"
	"github.com/xiaot623/thirdeye/internal/hub"
	"github.com/xiaot623/thirdeye/internal/policy"
	"github.com/xiaot623/thirdeye/internal/repository"
	"github.com/xiaot623/thirdeye/internal/testutil"
)

type recordingTransport struct {
	mu    sync.Mutex
	texts []domain.BroadcastMessage
}

func (r *recordingTransport) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return nil
	}
	var msg domain.BroadcastMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	r.mu.Lock()
	r.texts = append(r.texts, msg)
	r.mu.Unlock()
	return nil
}

func (r *recordingTransport) SetWriteDeadline(time.Time) error { return nil }
func (r *recordingTransport) Close() error                     { return nil }

func (r *recordingTransport) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.texts))
	for _, m := range r.texts {
		out = append(out, m.Type)
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		StrictOrder:     true,
		DefaultRoute:    "default",
		ProviderTimeout: 2 * time.Second,
		LegTimeout:      2 * time.Second,
	}
}

func setupService(t *testing.T, mock *llm.MockClient) (*Service, repository.Store, *hub.Hub) {
	t.Helper()
	store := testutil.NewSeededStore(t)
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	h := hub.New(hub.Config{PingInterval: time.Hour, PongWait: 2 * time.Hour, WriteTimeout: time.Second, SendBuffer: 64})
	t.Cleanup(h.Close)
	svc := New(store, mock, h, testConfig(), engine)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, store, h
}

func TestSubmitRunsFlowToCompletion(t *testing.T) {
	svc, _, _ := setupService(t, llm.NewMockClient())
	ctx := context.Background()

	result, err := svc.Submit(ctx, "s-full", "fix the login bug")
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Nil(t, result.StoppedAt)
	require.Len(t, result.Results, 5)
	assert.Equal(t, domain.EyeSharingan, result.Results[0].Eye)
	assert.Equal(t, domain.EyeByakugan, result.Results[4].Eye)

	session, err := svc.GetSession(ctx, "s-full")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusCompleted, session.Status)
	assert.Equal(t, domain.TaskTypeImplementation, session.RouteName)
}

func TestClarificationPauseThenResume(t *testing.T) {
	var mu sync.Mutex
	clarified := false
	mock := llm.NewMockClient().WithResponder(func(req llm.CallRequest) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if req.Eye == string(domain.EyeSharingan) && !clarified {
			return llm.MockEnvelope(req.Eye, false, domain.CodeNeedClarification, "Which login flow?"), nil
		}
		if req.Eye == string(domain.EyeSharingan) {
			return llm.MockEnvelope(req.Eye, true, domain.CodeClarificationResolved, "Clarified"), nil
		}
		return llm.DefaultMockResponse(req)
	})
	svc, _, _ := setupService(t, mock)
	ctx := context.Background()

	result, err := svc.Submit(ctx, "s-clarify", "fix the login bug")
	require.NoError(t, err)
	assert.False(t, result.Completed)
	require.NotNil(t, result.StoppedAt)
	assert.Equal(t, 0, *result.StoppedAt)
	assert.Equal(t, domain.StopPause, result.StopReason)

	progress, err := svc.GetPipelineProgress(ctx, "s-clarify")
	require.NoError(t, err)
	assert.Empty(t, progress.Entries)

	mu.Lock()
	clarified = true
	mu.Unlock()

	resp, err := svc.RunEye(ctx, domain.SubmitRequest{SessionID: "s-clarify", Eye: domain.EyeSharingan, Input: "The password reset flow"})
	require.NoError(t, err)
	require.Nil(t, resp.Violation)
	assert.Equal(t, domain.CodeClarificationResolved, resp.Envelope.Code)

	result, err = svc.Submit(ctx, "s-clarify", "fix the login bug")
	require.NoError(t, err)
	assert.True(t, result.Completed)
	require.Len(t, result.Results, 4)
	assert.Equal(t, domain.EyeRinnegan, result.Results[0].Eye)
}

func TestRunEyeOrderViolation(t *testing.T) {
	svc, _, _ := setupService(t, llm.NewMockClient())
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, domain.CreateSessionRequest{
		SessionID: "s-order",
		Route:     []domain.Eye{domain.EyeSharingan, domain.EyeRinnegan, domain.EyeMangekyo},
	})
	require.NoError(t, err)

	resp, err := svc.RunEye(ctx, domain.SubmitRequest{SessionID: "s-order", Eye: domain.EyeMangekyo, Input: "code"})
	require.NoError(t, err)
	require.NotNil(t, resp.Violation)
	assert.Nil(t, resp.Envelope)
	assert.Equal(t, domain.ReasonOutOfOrder, resp.Violation.Reason)
	assert.Contains(t, resp.Violation.Expected, domain.EyeSharingan)

	events, err := svc.ListEvents(ctx, "s-order", 0, 0)
	require.NoError(t, err)
	var types []domain.EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, domain.EventTypeOrderViolation)
	assert.NotContains(t, types, domain.EventTypeEyeStarted)
}

func TestKilledSessionIsBlocked(t *testing.T) {
	svc, _, _ := setupService(t, llm.NewMockClient())
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, domain.CreateSessionRequest{SessionID: "s-kill", RouteName: "default"})
	require.NoError(t, err)
	require.NoError(t, svc.KillSession(ctx, "s-kill"))

	resp, err := svc.RunEye(ctx, domain.SubmitRequest{SessionID: "s-kill", Eye: domain.EyeSharingan, Input: "task"})
	require.NoError(t, err)
	require.NotNil(t, resp.Violation)
	assert.True(t, resp.Violation.Blocked)
	assert.Equal(t, "session killed", resp.Violation.Reason)
}

func TestKilledSessionCannotBeReopened(t *testing.T) {
	svc, _, _ := setupService(t, llm.NewMockClient())
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, domain.CreateSessionRequest{SessionID: "s-final", RouteName: "default"})
	require.NoError(t, err)
	require.NoError(t, svc.KillSession(ctx, "s-final"))
	require.NoError(t, svc.KillSession(ctx, "s-final"))

	err = svc.CompleteSession(ctx, "s-final")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	status, err := svc.Status(ctx, "s-final")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusKilled, status.Session.Status)

	resp, err := svc.RunEye(ctx, domain.SubmitRequest{SessionID: "s-final", Eye: domain.EyeSharingan, Input: "task"})
	require.NoError(t, err)
	require.NotNil(t, resp.Violation)
	assert.Nil(t, resp.Envelope)
	assert.True(t, resp.Violation.Blocked)
}

func TestCompletedSessionCanOnlyBeKilled(t *testing.T) {
	svc, _, _ := setupService(t, llm.NewMockClient())
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, domain.CreateSessionRequest{SessionID: "s-done"})
	require.NoError(t, err)
	require.NoError(t, svc.CompleteSession(ctx, "s-done"))
	require.NoError(t, svc.KillSession(ctx, "s-done"))
	assert.ErrorIs(t, svc.CompleteSession(ctx, "s-done"), domain.ErrInvalidRequest)
	assert.ErrorIs(t, svc.KillSession(ctx, "missing"), domain.ErrNotFound)
}

func TestSubmitKeepsExplicitSessionRoute(t *testing.T) {
	svc, _, _ := setupService(t, llm.NewMockClient())
	ctx := context.Background()

	route := []domain.Eye{domain.EyeSharingan, domain.EyeRinnegan, domain.EyeMangekyo, domain.EyeByakugan}
	_, err := svc.CreateSession(ctx, domain.CreateSessionRequest{SessionID: "s-route", Route: route})
	require.NoError(t, err)

	result, err := svc.Submit(ctx, "s-route", "Please review this pull request diff for correctness")
	require.NoError(t, err)
	assert.True(t, result.Completed)
	require.Len(t, result.Results, len(route))
	for i, eye := range route {
		assert.Equal(t, eye, result.Results[i].Eye)
	}

	status, err := svc.Status(ctx, "s-route")
	require.NoError(t, err)
	assert.Equal(t, route, status.Session.Route)
	assert.Equal(t, domain.SessionStatusCompleted, status.Session.Status)
}

func TestExecuteFlowRejectsStartAtPastRoute(t *testing.T) {
	svc, _, _ := setupService(t, llm.NewMockClient())
	ctx := context.Background()

	_, err := svc.ExecuteFlow(ctx, "s-start", "plan the migration", nil, domain.FlowOptions{StartAt: 99})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestRunEyeFailsOverToFallback(t *testing.T) {
	mock := llm.NewMockClient().WithResponder(func(req llm.CallRequest) (string, error) {
		if req.Provider == "openai" {
			return "", errors.New("upstream 503")
		}
		return llm.DefaultMockResponse(req)
	})
	svc, _, _ := setupService(t, mock)
	ctx := context.Background()

	_, err := svc.UpsertRouting(ctx, domain.RoutingEntry{
		Eye:              domain.EyeSharingan,
		PrimaryProvider:  "openai",
		PrimaryModel:     "gpt-4o",
		FallbackProvider: "groq",
		FallbackModel:    "llama-3.1-70b",
	})
	require.NoError(t, err)

	resp, err := svc.RunEye(ctx, domain.SubmitRequest{SessionID: "s-failover", Eye: domain.EyeSharingan, Input: "task"})
	require.NoError(t, err)
	require.NotNil(t, resp.Envelope)
	assert.Equal(t, domain.CodeOK, resp.Envelope.Code)

	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "openai", calls[0].Provider)
	assert.Equal(t, "groq", calls[1].Provider)
}

func TestRunEyeProviderFailureIsReported(t *testing.T) {
	mock := llm.NewMockClient().WithResponder(func(req llm.CallRequest) (string, error) {
		return "", errors.New("down")
	})
	svc, _, _ := setupService(t, mock)
	ctx := context.Background()

	_, err := svc.RunEye(ctx, domain.SubmitRequest{SessionID: "s-down", Eye: domain.EyeSharingan, Input: "task"})
	require.Error(t, err)
	var perr *domain.ProviderError
	assert.True(t, errors.As(err, &perr))

	progress, err := svc.GetPipelineProgress(ctx, "s-down")
	require.NoError(t, err)
	assert.Empty(t, progress.Entries)
}

func TestRunEyeValidation(t *testing.T) {
	svc, _, _ := setupService(t, llm.NewMockClient())
	ctx := context.Background()

	_, err := svc.RunEye(ctx, domain.SubmitRequest{Eye: domain.EyeSharingan, Input: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = svc.RunEye(ctx, domain.SubmitRequest{SessionID: "s", Input: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = svc.RunEye(ctx, domain.SubmitRequest{SessionID: "s", Eye: domain.EyeSharingan, Input: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestRerunRequiresCompletedEye(t *testing.T) {
	svc, _, _ := setupService(t, llm.NewMockClient())
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, domain.CreateSessionRequest{
		SessionID: "s-rerun",
		Route:     []domain.Eye{domain.EyeSharingan, domain.EyeRinnegan},
	})
	require.NoError(t, err)

	resp, err := svc.Rerun(ctx, domain.RerunRequest{SessionID: "s-rerun", Eye: domain.EyeSharingan, Input: "again", Reason: "new info"})
	require.NoError(t, err)
	require.NotNil(t, resp.Violation)
	assert.Equal(t, domain.ReasonNotYetCompleted, resp.Violation.Reason)

	_, err = svc.RunEye(ctx, domain.SubmitRequest{SessionID: "s-rerun", Eye: domain.EyeSharingan, Input: "task"})
	require.NoError(t, err)

	resp, err = svc.Rerun(ctx, domain.RerunRequest{SessionID: "s-rerun", Eye: domain.EyeSharingan, Input: "again", Reason: "new info"})
	require.NoError(t, err)
	require.Nil(t, resp.Violation)

	progress, err := svc.GetPipelineProgress(ctx, "s-rerun")
	require.NoError(t, err)
	require.Len(t, progress.Entries, 2)
	assert.True(t, progress.Entries[1].Rerun)
	assert.Equal(t, []domain.Eye{domain.EyeRinnegan}, progress.CurrentlyAllowed)

	_, err = svc.Rerun(ctx, domain.RerunRequest{SessionID: "s-rerun", Eye: domain.EyeSharingan, Input: "again"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = svc.Rerun(ctx, domain.RerunRequest{SessionID: "missing", Eye: domain.EyeSharingan, Reason: "r"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionEventsAreBroadcast(t *testing.T) {
	svc, _, h := setupService(t, llm.NewMockClient())
	ctx := context.Background()

	tr := &recordingTransport{}
	h.AddConnection(tr, "s-live")

	_, err := svc.CreateSession(ctx, domain.CreateSessionRequest{SessionID: "s-live", RouteName: "default"})
	require.NoError(t, err)
	_, err = svc.RunEye(ctx, domain.SubmitRequest{SessionID: "s-live", Eye: domain.EyeSharingan, Input: "task"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(tr.types()) >= 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []domain.EventType{
		domain.EventTypeSessionCreated,
		domain.EventTypeEyeStarted,
		domain.EventTypeEyeCompleted,
	}, tr.types()[:3])
}

func TestSessionContextFlowsIntoInput(t *testing.T) {
	mock := llm.NewMockClient()
	svc, _, _ := setupService(t, mock)
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, domain.CreateSessionRequest{
		SessionID: "s-ctx",
		RouteName: "default",
		Context:   map[string]string{"language": "go"},
	})
	require.NoError(t, err)
	require.NoError(t, svc.AddContext(ctx, "s-ctx", domain.AddContextRequest{Key: "audience", Value: "ops"}))

	_, err = svc.RunEye(ctx, domain.SubmitRequest{SessionID: "s-ctx", Eye: domain.EyeSharingan, Input: "task"})
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].UserInput, "language: go")
	assert.Contains(t, calls[0].UserInput, "audience: ops")

	require.NoError(t, svc.RemoveContext(ctx, "s-ctx", "audience"))
	assert.ErrorIs(t, svc.RemoveContext(ctx, "s-ctx", "audience"), domain.ErrNotFound)
}

func TestSettingsValidation(t *testing.T) {
	svc, _, _ := setupService(t, llm.NewMockClient())
	ctx := context.Background()

	_, err := svc.UpsertRouting(ctx, domain.RoutingEntry{Eye: "nope", PrimaryProvider: "a", PrimaryModel: "b"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = svc.UpsertRouting(ctx, domain.RoutingEntry{Eye: domain.EyeJogan, PrimaryProvider: "a"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = svc.UpsertRouting(ctx, domain.RoutingEntry{Eye: domain.EyeJogan, PrimaryProvider: "a", PrimaryModel: "b", FallbackProvider: "c"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	p1, err := svc.CreatePersonaVersion(ctx, domain.EyeJogan, domain.PersonaRequest{Content: "v-next"})
	require.NoError(t, err)
	active, err := svc.GetActivePersona(ctx, domain.EyeJogan)
	require.NoError(t, err)
	assert.Equal(t, p1.Version, active.Version)
	assert.Equal(t, "v-next", active.Content)

	versions, err := svc.ListPersonaVersions(ctx, domain.EyeJogan)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(versions), 2)

	_, err = svc.UpsertRoute(ctx, domain.Route{Name: "bad", Steps: []domain.Eye{"nope"}})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	route, err := svc.UpsertRoute(ctx, domain.Route{Name: "short", Steps: []domain.Eye{domain.EyeSharingan, domain.EyeByakugan}})
	require.NoError(t, err)
	assert.Equal(t, "short", route.Name)
}

func TestRunDuelThroughService(t *testing.T) {
	svc, _, _ := setupService(t, llm.NewMockClient())
	ctx := context.Background()

	run, err := svc.RunDuel(ctx, domain.DuelRequest{
		Prompt: "review this",
		Eye:    domain.EyeMangekyo,
		Configs: []domain.DuelConfig{
			{Provider: "openai", Model: "a"},
			{Provider: "groq", Model: "b"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DuelStatusCompleted, run.Status)
	assert.Len(t, run.Ranking, 2)

	got, err := svc.GetDuel(ctx, run.DuelID)
	require.NoError(t, err)
	assert.Equal(t, run.DuelID, got.DuelID)

	_, err = svc.RunDuel(ctx, domain.DuelRequest{Prompt: "x", Eye: "nope", Configs: run.Configs})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestBackgroundDuelCompletes(t *testing.T) {
	svc, _, _ := setupService(t, llm.NewMockClient())
	ctx := context.Background()

	resp, err := svc.StartBackgroundDuel(ctx, domain.BackgroundDuelRequest{
		Eye:        domain.EyeByakugan,
		ModelA:     domain.DuelConfig{Provider: "openai", Model: "a"},
		ModelB:     domain.DuelConfig{Provider: "groq", Model: "b"},
		Input:      "docs",
		Iterations: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DuelStatusPending, resp.Status)

	assert.Eventually(t, func() bool {
		run, err := svc.GetDuel(ctx, resp.DuelID)
		return err == nil && run.Status == domain.DuelStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	run, err := svc.GetDuel(ctx, resp.DuelID)
	require.NoError(t, err)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 2, run.Summary.ApprovalsA)
	assert.Equal(t, 2, run.Summary.ApprovalsB)
}
