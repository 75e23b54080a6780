package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/thirdeye/internal/domain"
	"github.com/xiaot623/thirdeye/internal/repository"
	"github.com/xiaot623/thirdeye/internal/testutil"
)

// scriptedSteps answers each eye with a fixed code and records advancing steps.
type scriptedSteps struct {
	store      repository.Store
	codes      map[domain.Eye]string
	violations map[domain.Eye]*domain.Violation
	errs       map[domain.Eye]error
	inputs     map[domain.Eye]string
	ran        []domain.Eye
}

func newScripted(store repository.Store) *scriptedSteps {
	return &scriptedSteps{
		store:      store,
		codes:      map[domain.Eye]string{},
		violations: map[domain.Eye]*domain.Violation{},
		errs:       map[domain.Eye]error{},
		inputs:     map[domain.Eye]string{},
	}
}

func (s *scriptedSteps) RunStep(ctx context.Context, sessionID string, eye domain.Eye, input string) (*domain.Envelope, *domain.Violation, error) {
	s.ran = append(s.ran, eye)
	s.inputs[eye] = input
	if v := s.violations[eye]; v != nil {
		return nil, v, nil
	}
	if err := s.errs[eye]; err != nil {
		return nil, nil, err
	}
	code, ok := s.codes[eye]
	if !ok {
		code = domain.CodeOK
	}
	env := testutil.Envelope(eye, !domain.IsPauseCode(code) && domain.ClassifyCode(code) != domain.KindRevision, code)
	if env.Advances() {
		if err := s.store.AppendProgress(ctx, &domain.ProgressEntry{SessionID: sessionID, Eye: eye, Outcome: code}); err != nil {
			return nil, nil, err
		}
	}
	return env, nil, nil
}

func TestAnalyzeClassification(t *testing.T) {
	r := New(testutil.NewTestStore(t), nil)
	ctx := context.Background()

	cases := []struct {
		task     string
		taskType string
		flow     []domain.Eye
	}{
		{
			task:     "Implement a rate limiter middleware for the API endpoint and add unit tests covering burst traffic",
			taskType: domain.TaskTypeImplementation,
			flow:     Flows[domain.TaskTypeImplementation],
		},
		{
			task:     "fix the login bug",
			taskType: domain.TaskTypeImplementation,
			flow:     []domain.Eye{domain.EyeSharingan, domain.EyeRinnegan, domain.EyeMangekyo, domain.EyeTenseigan, domain.EyeByakugan},
		},
		{
			task:     "Please review this pull request diff for correctness",
			taskType: domain.TaskTypeReview,
			flow:     Flows[domain.TaskTypeReview],
		},
		{
			task:     "Verify the citations and sources in this report",
			taskType: domain.TaskTypeFactCheck,
			flow:     Flows[domain.TaskTypeFactCheck],
		},
		{
			task:     "Draft a roadmap and strategy for the storage architecture",
			taskType: domain.TaskTypePlanning,
			flow:     Flows[domain.TaskTypePlanning],
		},
		{
			task:     "Write a blog post announcing the release",
			taskType: domain.TaskTypeContent,
			flow:     Flows[domain.TaskTypeContent],
		},
		{
			task:     "make it better?",
			taskType: domain.TaskTypeClarification,
			flow:     Flows[domain.TaskTypeClarification],
		},
	}

	for _, tc := range cases {
		t.Run(tc.taskType+"/"+tc.task, func(t *testing.T) {
			decision, err := r.Analyze(ctx, tc.task, "", domain.AnalyzeOptions{})
			require.NoError(t, err)
			assert.Equal(t, tc.taskType, decision.TaskType)
			assert.Equal(t, tc.flow, decision.RecommendedFlow)
			assert.NotEmpty(t, decision.Reasoning)
		})
	}
}

func TestAnalyzeDomainAndComplexity(t *testing.T) {
	r := New(testutil.NewTestStore(t), nil)

	decision, err := r.Analyze(context.Background(), "Build a distributed ETL pipeline that loads the csv dataset into a query table", "", domain.AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "data", decision.Domain)
	assert.Equal(t, domain.ComplexityHigh, decision.Complexity)

	decision, err = r.Analyze(context.Background(), "fix the bug in the handler", "", domain.AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "code", decision.Domain)
	assert.Equal(t, domain.ComplexityLow, decision.Complexity)
}

func TestAnalyzeCreatesSession(t *testing.T) {
	store := testutil.NewTestStore(t)
	r := New(store, nil)

	decision, err := r.Analyze(context.Background(), "review my diff", "", domain.AnalyzeOptions{CreateSession: true})
	require.NoError(t, err)
	require.NotEmpty(t, decision.SessionID)

	session, err := store.GetSession(context.Background(), decision.SessionID)
	require.NoError(t, err)
	assert.NotNil(t, session)
}

func TestAnalyzeRejectsEmptyTask(t *testing.T) {
	r := New(testutil.NewTestStore(t), nil)
	_, err := r.Analyze(context.Background(), "   ", "", domain.AnalyzeOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestExecuteFlowCompletes(t *testing.T) {
	store := testutil.NewTestStore(t)
	steps := newScripted(store)
	r := New(store, steps)

	decision := &domain.RoutingDecision{TaskType: domain.TaskTypeReview, RecommendedFlow: Flows[domain.TaskTypeReview]}
	result, err := r.ExecuteFlow(context.Background(), "review", decision, "s1", domain.FlowOptions{})
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Nil(t, result.StoppedAt)
	assert.Len(t, result.Results, 2)
	assert.Contains(t, steps.inputs[domain.EyeByakugan], "--- mangekyo ---")

	session, err := store.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, Flows[domain.TaskTypeReview], session.Route)
	assert.Equal(t, domain.TaskTypeReview, session.RouteName)
}

func TestExecuteFlowStopsOnPause(t *testing.T) {
	store := testutil.NewTestStore(t)
	steps := newScripted(store)
	steps.codes[domain.EyeSharingan] = domain.CodeNeedClarification
	r := New(store, steps)

	decision := &domain.RoutingDecision{TaskType: domain.TaskTypePlanning, RecommendedFlow: Flows[domain.TaskTypePlanning]}
	result, err := r.ExecuteFlow(context.Background(), "plan it", decision, "s1", domain.FlowOptions{})
	require.NoError(t, err)
	assert.False(t, result.Completed)
	require.NotNil(t, result.StoppedAt)
	assert.Equal(t, 0, *result.StoppedAt)
	assert.Equal(t, domain.StopPause, result.StopReason)
	assert.Equal(t, []domain.Eye{domain.EyeSharingan}, steps.ran)
}

func TestExecuteFlowStopsOnRevisionWithoutRetry(t *testing.T) {
	store := testutil.NewTestStore(t)
	steps := newScripted(store)
	steps.codes[domain.EyeMangekyo] = domain.CodeNeedsRevision
	r := New(store, steps)

	decision := &domain.RoutingDecision{TaskType: domain.TaskTypeReview, RecommendedFlow: Flows[domain.TaskTypeReview]}
	result, err := r.ExecuteFlow(context.Background(), "review", decision, "s1", domain.FlowOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StopRevision, result.StopReason)
	assert.Equal(t, []domain.Eye{domain.EyeMangekyo}, steps.ran)
}

func TestExecuteFlowAttachesErrorsAndViolations(t *testing.T) {
	store := testutil.NewTestStore(t)
	steps := newScripted(store)
	steps.errs[domain.EyeRinnegan] = errors.New("provider down")
	r := New(store, steps)

	decision := &domain.RoutingDecision{TaskType: domain.TaskTypePlanning, RecommendedFlow: Flows[domain.TaskTypePlanning]}
	result, err := r.ExecuteFlow(context.Background(), "plan", decision, "s1", domain.FlowOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.StoppedAt)
	assert.Equal(t, 2, *result.StoppedAt)
	assert.Equal(t, domain.StopError, result.StopReason)
	assert.Equal(t, "provider down", result.Results[2].Error)

	steps2 := newScripted(store)
	steps2.violations[domain.EyeTenseigan] = &domain.Violation{SessionID: "s2", Got: domain.EyeTenseigan, Reason: domain.ReasonOutOfOrder}
	r2 := New(store, steps2)
	result, err = r2.ExecuteFlow(context.Background(), "check", &domain.RoutingDecision{TaskType: domain.TaskTypeFactCheck, RecommendedFlow: Flows[domain.TaskTypeFactCheck]}, "s2", domain.FlowOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StopViolation, result.StopReason)
	assert.NotNil(t, result.Results[0].Violation)
}

func TestExecuteFlowResumesAfterCompletedSteps(t *testing.T) {
	store := testutil.NewTestStore(t)
	steps := newScripted(store)
	steps.codes[domain.EyeJogan] = domain.CodeAwaitInput
	r := New(store, steps)

	decision := &domain.RoutingDecision{TaskType: domain.TaskTypePlanning, RecommendedFlow: Flows[domain.TaskTypePlanning]}
	result, err := r.ExecuteFlow(context.Background(), "plan", decision, "s1", domain.FlowOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, *result.StoppedAt)

	// A later submission with a different recommendation keeps the bound route.
	steps.codes[domain.EyeJogan] = domain.CodeOK
	steps.ran = nil
	other := &domain.RoutingDecision{TaskType: domain.TaskTypeReview, RecommendedFlow: Flows[domain.TaskTypeReview]}
	result, err = r.ExecuteFlow(context.Background(), "plan", other, "s1", domain.FlowOptions{})
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Equal(t, []domain.Eye{domain.EyeJogan, domain.EyeRinnegan}, steps.ran)
}

func TestExecuteFlowRejectsEmptyDecision(t *testing.T) {
	r := New(testutil.NewTestStore(t), nil)
	_, err := r.ExecuteFlow(context.Background(), "x", &domain.RoutingDecision{}, "s1", domain.FlowOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestExecuteFlowKeepsExplicitRouteWithoutProgress(t *testing.T) {
	store := testutil.NewTestStore(t)
	route := []domain.Eye{domain.EyeSharingan, domain.EyeRinnegan, domain.EyeMangekyo, domain.EyeByakugan}
	require.NoError(t, store.CreateSession(context.Background(), &domain.Session{SessionID: "r", Route: route, RouteName: "custom"}))
	steps := newScripted(store)
	r := New(store, steps)

	review := &domain.RoutingDecision{TaskType: domain.TaskTypeReview, RecommendedFlow: Flows[domain.TaskTypeReview]}
	result, err := r.ExecuteFlow(context.Background(), "review this diff", review, "r", domain.FlowOptions{})
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Equal(t, route, steps.ran)

	session, err := store.GetSession(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, route, session.Route)
	assert.Equal(t, "custom", session.RouteName)
}

func TestExecuteFlowRejectsStartAtOutsideFlow(t *testing.T) {
	store := testutil.NewTestStore(t)
	steps := newScripted(store)
	r := New(store, steps)
	decision := &domain.RoutingDecision{TaskType: domain.TaskTypePlanning, RecommendedFlow: Flows[domain.TaskTypePlanning]}

	for _, startAt := range []int{-1, 3, 99} {
		_, err := r.ExecuteFlow(context.Background(), "plan", decision, "s1", domain.FlowOptions{StartAt: startAt})
		assert.ErrorIs(t, err, domain.ErrInvalidRequest, "start_at=%d", startAt)
	}
	assert.Empty(t, steps.ran)

	session, err := store.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, session.Route)
}

func TestExecuteFlowOnFinishedRouteIsNotCompleted(t *testing.T) {
	store := testutil.NewTestStore(t)
	steps := newScripted(store)
	r := New(store, steps)
	decision := &domain.RoutingDecision{TaskType: domain.TaskTypeFactCheck, RecommendedFlow: Flows[domain.TaskTypeFactCheck]}

	result, err := r.ExecuteFlow(context.Background(), "check", decision, "s1", domain.FlowOptions{})
	require.NoError(t, err)
	require.True(t, result.Completed)

	steps.ran = nil
	result, err = r.ExecuteFlow(context.Background(), "check", decision, "s1", domain.FlowOptions{})
	require.NoError(t, err)
	assert.False(t, result.Completed)
	assert.Equal(t, domain.StopRouteComplete, result.StopReason)
	assert.Empty(t, result.Results)
	assert.Empty(t, steps.ran)
}
