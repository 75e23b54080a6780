// Package router classifies tasks and drives them through a flow of eyes.
package router

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// StepRunner runs one eye under ordering rules and records its completion.
type StepRunner interface {
	RunStep(ctx context.Context, sessionID string, eye domain.Eye, input string) (*domain.Envelope, *domain.Violation, error)
}

// SessionStore is the subset of persistence the router needs.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetOrCreateSession(ctx context.Context, sessionID string) (*domain.Session, error)
	SetSessionRoute(ctx context.Context, sessionID, routeName string, route []domain.Eye) error
	ListProgress(ctx context.Context, sessionID string) ([]domain.ProgressEntry, error)
}

// Router analyzes tasks and executes recommended flows.
type Router struct {
	sessions SessionStore
	steps    StepRunner
}

// New creates a new Router.
func New(sessions SessionStore, steps StepRunner) *Router {
	return &Router{sessions: sessions, steps: steps}
}

// Analyze classifies a task and recommends a flow.
func (r *Router) Analyze(ctx context.Context, task, sessionID string, opts domain.AnalyzeOptions) (*domain.RoutingDecision, error) {
	if strings.TrimSpace(task) == "" {
		return nil, domain.InvalidRequest("task is required")
	}

	decision := classify(task)
	if sessionID == "" && opts.CreateSession {
		sessionID = uuid.New().String()
		if _, err := r.sessions.GetOrCreateSession(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
	}
	decision.SessionID = sessionID
	return decision, nil
}

// ExecuteFlow runs the decision's flow step by step. It stops at the first pause,
// revision request, order violation or error. Step failures are reported in the
// result rather than returned.
func (r *Router) ExecuteFlow(ctx context.Context, task string, decision *domain.RoutingDecision, sessionID string, opts domain.FlowOptions) (*domain.FlowResult, error) {
	if decision == nil || len(decision.RecommendedFlow) == 0 {
		return nil, domain.InvalidRequest("decision has no flow")
	}
	if sessionID == "" {
		sessionID = decision.SessionID
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	session, err := r.sessions.GetOrCreateSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	progress, err := r.sessions.ListProgress(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}

	// A route already bound to the session is never replaced by a recommendation.
	flow := decision.RecommendedFlow
	bound := len(session.Route) > 0
	if bound {
		flow = session.Route
	}
	if opts.StartAt < 0 || opts.StartAt >= len(flow) {
		return nil, domain.InvalidRequest("start_at %d is outside the flow (0..%d)", opts.StartAt, len(flow)-1)
	}

	start := 0
	if bound {
		start = resumeIndex(flow, progress)
		if hasProgress(progress) {
			log.Printf("INFO: session %s resuming route %v at step %d", sessionID, flow, start)
		}
	} else if err := r.sessions.SetSessionRoute(ctx, sessionID, decision.TaskType, flow); err != nil {
		return nil, fmt.Errorf("failed to bind route: %w", err)
	}
	if opts.StartAt > start {
		start = opts.StartAt
	}

	result := &domain.FlowResult{
		SessionID: sessionID,
		Decision:  decision,
		Results:   []domain.FlowStep{},
	}
	if start >= len(flow) {
		result.StopReason = domain.StopRouteComplete
		log.Printf("INFO: session %s has already finished route %v", sessionID, flow)
		return result, nil
	}

	prev := ""
	var prevEye domain.Eye
	for i := start; i < len(flow); i++ {
		eye := flow[i]
		env, violation, err := r.steps.RunStep(ctx, sessionID, eye, stepInput(task, prevEye, prev))
		step := domain.FlowStep{Eye: eye, Envelope: env, Violation: violation}

		stop := ""
		switch {
		case err != nil:
			step.Error = err.Error()
			stop = domain.StopError
		case violation != nil:
			stop = domain.StopViolation
		case env.IsPause():
			stop = domain.StopPause
		case env.NeedsRevision():
			stop = domain.StopRevision
		case !env.Advances():
			stop = domain.StopRejected
		}
		result.Results = append(result.Results, step)

		if stop != "" {
			idx := i
			result.StoppedAt = &idx
			result.StopReason = stop
			log.Printf("INFO: flow for session %s stopped at %s (%d): %s", sessionID, eye, i, stop)
			return result, nil
		}
		prev, prevEye = env.Text(), eye
	}

	result.Completed = true
	return result, nil
}

// Submit analyzes a task and executes its flow.
func (r *Router) Submit(ctx context.Context, sessionID, task string) (*domain.FlowResult, error) {
	decision, err := r.Analyze(ctx, task, sessionID, domain.AnalyzeOptions{})
	if err != nil {
		return nil, err
	}
	return r.ExecuteFlow(ctx, task, decision, sessionID, domain.FlowOptions{})
}

func hasProgress(entries []domain.ProgressEntry) bool {
	for _, e := range entries {
		if !e.Rerun {
			return true
		}
	}
	return false
}

// resumeIndex returns the step after the furthest completed one.
func resumeIndex(flow []domain.Eye, entries []domain.ProgressEntry) int {
	next := 0
	for _, e := range entries {
		if e.Rerun {
			continue
		}
		for i, step := range flow {
			if step == e.Eye && i+1 > next {
				next = i + 1
				break
			}
		}
	}
	return next
}

func stepInput(task string, prevEye domain.Eye, prev string) string {
	if prev == "" {
		return task
	}
	return fmt.Sprintf("%s\n\n--- %s ---\n%s", task, prevEye, prev)
}
