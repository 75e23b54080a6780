package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/thirdeye/internal/adapter/llm"
	"github.com/xiaot623/thirdeye/internal/domain"
)

type fakeSettings struct {
	personas map[domain.Eye]*domain.Persona
	routing  map[domain.Eye]*domain.RoutingEntry
}

func (f *fakeSettings) GetActivePersona(ctx context.Context, eye domain.Eye) (*domain.Persona, error) {
	return f.personas[eye], nil
}

func (f *fakeSettings) GetRouting(ctx context.Context, eye domain.Eye) (*domain.RoutingEntry, error) {
	return f.routing[eye], nil
}

func newSettings(withFallback bool) *fakeSettings {
	entry := &domain.RoutingEntry{
		Eye:             domain.EyeMangekyo,
		PrimaryProvider: "groq",
		PrimaryModel:    "llama",
	}
	if withFallback {
		entry.FallbackProvider = "openrouter"
		entry.FallbackModel = "claude"
	}
	return &fakeSettings{
		personas: map[domain.Eye]*domain.Persona{
			domain.EyeMangekyo: {Eye: domain.EyeMangekyo, Version: 1, Content: "Review the code.", Active: true},
		},
		routing: map[domain.Eye]*domain.RoutingEntry{domain.EyeMangekyo: entry},
	}
}

func byProvider(responses map[string]func() (string, error)) llm.MockResponder {
	return func(req llm.CallRequest) (string, error) {
		return responses[req.Provider]()
	}
}

func approved() (string, error) {
	return llm.MockEnvelope("mangekyo", true, "APPROVED", "looks good"), nil
}

func TestRunEyePrimarySuccess(t *testing.T) {
	settings := newSettings(true)
	mock := llm.NewMockClient().WithResponder(byProvider(map[string]func() (string, error){
		"groq": approved,
	}))
	exec := New(settings, settings, mock, time.Second)

	env, err := exec.RunEye(context.Background(), domain.EyeMangekyo, "diff", "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.KindApproved, env.Kind)
	assert.Len(t, mock.Calls(), 1)

	call := mock.Calls()[0]
	assert.Equal(t, "llama", call.Model)
	assert.Contains(t, call.SystemPrompt, "Review the code.")
	assert.Contains(t, call.SystemPrompt, `"mangekyo"`)
	assert.Equal(t, "diff", call.UserInput)
}

func TestRunEyeFallsBackOnTransportError(t *testing.T) {
	settings := newSettings(true)
	mock := llm.NewMockClient().WithResponder(byProvider(map[string]func() (string, error){
		"groq":       func() (string, error) { return "", &llm.StatusError{StatusCode: 503, Message: "unavailable"} },
		"openrouter": approved,
	}))
	exec := New(settings, settings, mock, time.Second)

	env, err := exec.RunEye(context.Background(), domain.EyeMangekyo, "diff", "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.CodeApproved, env.Code)

	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "groq", calls[0].Provider)
	assert.Equal(t, "openrouter", calls[1].Provider)
}

func TestRunEyeFallsBackOnMalformedEnvelope(t *testing.T) {
	settings := newSettings(true)
	mock := llm.NewMockClient().WithResponder(byProvider(map[string]func() (string, error){
		"groq":       func() (string, error) { return "I think it looks fine!", nil },
		"openrouter": approved,
	}))
	exec := New(settings, settings, mock, time.Second)

	env, err := exec.RunEye(context.Background(), domain.EyeMangekyo, "diff", "s1")
	require.NoError(t, err)
	assert.True(t, env.Advances())
	assert.Len(t, mock.Calls(), 2)
}

func TestRunEyeBothTargetsFail(t *testing.T) {
	settings := newSettings(true)
	mock := llm.NewMockClient().WithResponder(byProvider(map[string]func() (string, error){
		"groq":       func() (string, error) { return "", errors.New("connection refused") },
		"openrouter": func() (string, error) { return `{"ok":true}`, nil },
	}))
	exec := New(settings, settings, mock, time.Second)

	_, err := exec.RunEye(context.Background(), domain.EyeMangekyo, "diff", "s1")
	require.Error(t, err)

	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Error(t, perr.Primary)
	assert.Error(t, perr.Fallback)
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.ErrorIs(t, err, domain.ErrInvalidEnvelope)
	assert.Len(t, mock.Calls(), 2)
}

func TestRunEyeWithoutFallback(t *testing.T) {
	settings := newSettings(false)
	mock := llm.NewMockClient().WithResponder(byProvider(map[string]func() (string, error){
		"groq": func() (string, error) { return "", errors.New("boom") },
	}))
	exec := New(settings, settings, mock, time.Second)

	_, err := exec.RunEye(context.Background(), domain.EyeMangekyo, "diff", "s1")
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Nil(t, perr.Fallback)
	assert.Len(t, mock.Calls(), 1)
}

func TestRunEyePrimaryTimeoutTriggersFallback(t *testing.T) {
	settings := newSettings(true)
	slow := llm.NewMockClient().WithDelay(200 * time.Millisecond)
	exec := New(settings, settings, slow, 20*time.Millisecond)

	_, err := exec.RunEye(context.Background(), domain.EyeMangekyo, "diff", "s1")
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, perr.Primary, context.DeadlineExceeded)
	assert.ErrorIs(t, perr.Fallback, context.DeadlineExceeded)
}

func TestRunEyeMissingPersona(t *testing.T) {
	settings := newSettings(true)
	delete(settings.personas, domain.EyeMangekyo)
	mock := llm.NewMockClient()
	exec := New(settings, settings, mock, time.Second)

	_, err := exec.RunEye(context.Background(), domain.EyeMangekyo, "diff", "s1")
	var cerr *domain.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, domain.EyeMangekyo, cerr.Eye)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Empty(t, mock.Calls())
}

func TestRunEyeMissingRouting(t *testing.T) {
	settings := newSettings(true)
	delete(settings.routing, domain.EyeMangekyo)
	mock := llm.NewMockClient()
	exec := New(settings, settings, mock, time.Second)

	_, err := exec.RunEye(context.Background(), domain.EyeMangekyo, "diff", "s1")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Empty(t, mock.Calls())
}

func TestRunTargetReportsLatencyAndTokens(t *testing.T) {
	settings := newSettings(false)
	mock := llm.NewMockClient().WithDelay(5 * time.Millisecond)
	exec := New(settings, settings, mock, time.Second)

	res, err := exec.RunTarget(context.Background(), domain.EyeMangekyo, "review this", domain.Target{Provider: "ollama", Model: "qwen"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.LatencyMs, int64(5))
	assert.Positive(t, res.TokensIn)
	assert.Positive(t, res.TokensOut)
	assert.Equal(t, "ollama", mock.Calls()[0].Provider)
	assert.Equal(t, domain.CodeApproved, res.Envelope.Code)
}

func TestRunTargetDoesNotFailOver(t *testing.T) {
	settings := newSettings(true)
	mock := llm.NewMockClient().WithResponder(func(req llm.CallRequest) (string, error) {
		return "", errors.New("down")
	})
	exec := New(settings, settings, mock, time.Second)

	res, err := exec.RunTarget(context.Background(), domain.EyeMangekyo, "x", domain.Target{Provider: "groq", Model: "llama"})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Nil(t, res.Envelope)
	assert.Len(t, mock.Calls(), 1)
}

func TestFailureKind(t *testing.T) {
	assert.Equal(t, "timeout", failureKind(context.DeadlineExceeded))
	assert.Equal(t, "transient", failureKind(&llm.StatusError{StatusCode: 503}))
	assert.Equal(t, "rejected", failureKind(&llm.StatusError{StatusCode: 401}))
	assert.Equal(t, "transport", failureKind(errors.New("connection refused")))
}
