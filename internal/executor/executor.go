// Package executor runs a single eye against its configured provider/model pair.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/xiaot623/thirdeye/internal/adapter/llm"
	"github.com/xiaot623/thirdeye/internal/domain"
	"github.com/xiaot623/thirdeye/internal/metrics"
)

// PersonaStore resolves the active persona for an eye.
type PersonaStore interface {
	GetActivePersona(ctx context.Context, eye domain.Eye) (*domain.Persona, error)
}

// RoutingStore resolves the routing entry for an eye.
type RoutingStore interface {
	GetRouting(ctx context.Context, eye domain.Eye) (*domain.RoutingEntry, error)
}

// Provider performs the raw provider call.
type Provider interface {
	Call(ctx context.Context, req llm.CallRequest) (*llm.CallResult, error)
}

// Result is the outcome of a single target call.
type Result struct {
	Envelope  *domain.Envelope
	Target    domain.Target
	LatencyMs int64
	TokensIn  int
	TokensOut int
}

// Executor runs eyes with primary/fallback failover.
type Executor struct {
	personas PersonaStore
	routing  RoutingStore
	provider Provider
	timeout  time.Duration
}

// New creates a new Executor. A zero timeout disables the per-call deadline.
func New(personas PersonaStore, routing RoutingStore, provider Provider, timeout time.Duration) *Executor {
	return &Executor{
		personas: personas,
		routing:  routing,
		provider: provider,
		timeout:  timeout,
	}
}

// RunEye runs an eye on its primary target and, on failure, once on its fallback.
// It returns exactly one parsed envelope or an error.
func (e *Executor) RunEye(ctx context.Context, eye domain.Eye, input, sessionID string) (*domain.Envelope, error) {
	persona, entry, err := e.resolve(ctx, eye)
	if err != nil {
		return nil, err
	}

	res, primaryErr := e.call(ctx, eye, persona, entry, entry.Primary(), input)
	if primaryErr == nil {
		metrics.EyeCalls.WithLabelValues(string(eye), "primary", "ok").Inc()
		return res.Envelope, nil
	}
	metrics.EyeCalls.WithLabelValues(string(eye), "primary", "error").Inc()

	fallback, ok := entry.Fallback()
	if !ok {
		log.Printf("ERROR: eye %s session=%s primary %s failed, no fallback: %v", eye, sessionID, entry.Primary(), primaryErr)
		return nil, &domain.ProviderError{Eye: eye, Primary: primaryErr}
	}

	log.Printf("WARN: eye %s session=%s primary %s failed (%s), trying fallback %s: %v", eye, sessionID, entry.Primary(), failureKind(primaryErr), fallback, primaryErr)
	res, fallbackErr := e.call(ctx, eye, persona, entry, fallback, input)
	if fallbackErr != nil {
		metrics.EyeCalls.WithLabelValues(string(eye), "fallback", "error").Inc()
		log.Printf("ERROR: eye %s session=%s fallback %s failed: %v", eye, sessionID, fallback, fallbackErr)
		return nil, &domain.ProviderError{Eye: eye, Primary: primaryErr, Fallback: fallbackErr}
	}
	metrics.EyeCalls.WithLabelValues(string(eye), "fallback", "ok").Inc()
	return res.Envelope, nil
}

// RunTarget runs an eye against an explicit target with no failover.
func (e *Executor) RunTarget(ctx context.Context, eye domain.Eye, input string, target domain.Target) (*Result, error) {
	persona, err := e.persona(ctx, eye)
	if err != nil {
		return nil, err
	}
	entry, err := e.routing.GetRouting(ctx, eye)
	if err != nil {
		return nil, fmt.Errorf("failed to get routing: %w", err)
	}
	if entry == nil {
		entry = &domain.RoutingEntry{Eye: eye}
	}

	res, err := e.call(ctx, eye, persona, entry, target, input)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.EyeCalls.WithLabelValues(string(eye), "target", outcome).Inc()
	return res, err
}

func (e *Executor) resolve(ctx context.Context, eye domain.Eye) (*domain.Persona, *domain.RoutingEntry, error) {
	persona, err := e.persona(ctx, eye)
	if err != nil {
		return nil, nil, err
	}
	entry, err := e.routing.GetRouting(ctx, eye)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get routing: %w", err)
	}
	if entry == nil || entry.PrimaryProvider == "" || entry.PrimaryModel == "" {
		return nil, nil, &domain.ConfigError{Eye: eye, Reason: "no routing entry"}
	}
	return persona, entry, nil
}

func (e *Executor) persona(ctx context.Context, eye domain.Eye) (*domain.Persona, error) {
	persona, err := e.personas.GetActivePersona(ctx, eye)
	if err != nil {
		return nil, fmt.Errorf("failed to get persona: %w", err)
	}
	if persona == nil {
		return nil, &domain.ConfigError{Eye: eye, Reason: "no active persona"}
	}
	return persona, nil
}

// call performs one provider call under the provider timeout and parses its envelope.
// The result carries latency even when parsing fails.
func (e *Executor) call(ctx context.Context, eye domain.Eye, persona *domain.Persona, entry *domain.RoutingEntry, target domain.Target, input string) (*Result, error) {
	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := e.provider.Call(callCtx, llm.CallRequest{
		Eye:          string(eye),
		Provider:     target.Provider,
		Model:        target.Model,
		SystemPrompt: SystemPrompt(eye, persona.Content),
		UserInput:    input,
		Temperature:  entry.Temperature,
		MaxTokens:    entry.MaxTokens,
	})
	elapsed := time.Since(start)
	metrics.EyeLatency.WithLabelValues(string(eye)).Observe(elapsed.Seconds())

	res := &Result{Target: target, LatencyMs: elapsed.Milliseconds()}
	if err != nil {
		return res, fmt.Errorf("%s: %w", target, err)
	}
	res.TokensIn = out.TokensIn
	res.TokensOut = out.TokensOut

	env, err := domain.ParseEnvelope(out.Text, eye)
	if err != nil {
		return res, fmt.Errorf("%s: %w", target, err)
	}
	res.Envelope = env
	return res, nil
}

// failureKind labels a provider failure for logs.
func failureKind(err error) string {
	var statusErr *llm.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &statusErr) && statusErr.Temporary():
		return "transient"
	case errors.As(err, &statusErr):
		return "rejected"
	default:
		return "transport"
	}
}

// SystemPrompt combines the persona with the envelope contract for an eye.
func SystemPrompt(eye domain.Eye, persona string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(persona))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "You are the %q eye. Respond with a single JSON object and nothing else:\n", eye)
	fmt.Fprintf(&b, `{"eye":%q,"ok":<bool>,"code":"<CODE>","md":"<markdown report>","data":{"confidence":<0-100>},"next":<string|null>}`, eye)
	b.WriteString("\nUse code APPROVED or OK to pass, NEED_CLARIFICATION or NEED_MORE_CONTEXT to ask for input, NEEDS_REVISION or REJECTED to request changes.")
	return b.String()
}
