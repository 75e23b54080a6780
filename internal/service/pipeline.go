package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// RunStep runs one eye under the order guard. It satisfies router.StepRunner.
func (s *Service) RunStep(ctx context.Context, sessionID string, eye domain.Eye, input string) (*domain.Envelope, *domain.Violation, error) {
	session, err := s.store.GetOrCreateSession(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	env, violation, err := s.guard.Guarded(ctx, sessionID, eye, func(ctx context.Context) (*domain.Envelope, error) {
		s.emit(ctx, sessionID, domain.EventTypeEyeStarted, map[string]string{"eye": string(eye)})
		return s.executor.RunEye(ctx, eye, withContext(input, session), sessionID)
	})
	return s.finishStep(ctx, sessionID, eye, env, violation, err, domain.EventTypeEyeCompleted)
}

func (s *Service) finishStep(ctx context.Context, sessionID string, eye domain.Eye, env *domain.Envelope, violation *domain.Violation, err error, completed domain.EventType) (*domain.Envelope, *domain.Violation, error) {
	switch {
	case violation != nil:
		s.emit(ctx, sessionID, domain.EventTypeOrderViolation, violation)
		return nil, violation, nil
	case err != nil:
		log.Printf("ERROR: eye %s failed for session %s: %v", eye, sessionID, err)
		s.emit(ctx, sessionID, domain.EventTypeEyeFailed, map[string]string{"eye": string(eye), "error": err.Error()})
		return env, nil, err
	}
	s.emit(ctx, sessionID, completed, map[string]interface{}{"eye": eye, "envelope": env})
	return env, nil, nil
}

// RunEye invokes a single eye directly on behalf of an agent.
func (s *Service) RunEye(ctx context.Context, req domain.SubmitRequest) (*domain.EyeRunResponse, error) {
	if req.SessionID == "" {
		return nil, domain.InvalidRequest("session_id is required")
	}
	if req.Eye == "" {
		return nil, domain.InvalidRequest("eye is required")
	}
	if strings.TrimSpace(req.Input) == "" {
		return nil, domain.InvalidRequest("input is required")
	}

	env, violation, err := s.RunStep(ctx, req.SessionID, req.Eye, req.Input)
	if err != nil {
		return nil, err
	}
	if env != nil {
		s.completeIfDone(ctx, req.SessionID)
	}
	return &domain.EyeRunResponse{SessionID: req.SessionID, Envelope: env, Violation: violation}, nil
}

// Rerun re-executes an already completed eye as a supervised override.
func (s *Service) Rerun(ctx context.Context, req domain.RerunRequest) (*domain.EyeRunResponse, error) {
	if req.SessionID == "" || req.Eye == "" {
		return nil, domain.InvalidRequest("session_id and eye are required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, domain.InvalidRequest("reason is required")
	}
	session, err := s.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	log.Printf("INFO: rerun of %s requested for session %s: %s", req.Eye, req.SessionID, req.Reason)
	env, violation, err := s.guard.Rerun(ctx, req.SessionID, req.Eye, req.Reason, func(ctx context.Context) (*domain.Envelope, error) {
		s.emit(ctx, req.SessionID, domain.EventTypeEyeStarted, map[string]interface{}{"eye": req.Eye, "rerun": true})
		return s.executor.RunEye(ctx, req.Eye, withContext(req.Input, session), req.SessionID)
	})
	env, violation, err = s.finishStep(ctx, req.SessionID, req.Eye, env, violation, err, domain.EventTypeEyeRerun)
	if err != nil {
		return nil, err
	}
	return &domain.EyeRunResponse{SessionID: req.SessionID, Envelope: env, Violation: violation}, nil
}

// Analyze classifies a task and recommends a flow.
func (s *Service) Analyze(ctx context.Context, req domain.AnalyzeRequest) (*domain.RoutingDecision, error) {
	return s.router.Analyze(ctx, req.Task, req.SessionID, req.Options)
}

// Submit analyzes a task and runs its flow for the session.
func (s *Service) Submit(ctx context.Context, sessionID, task string) (*domain.FlowResult, error) {
	return s.ExecuteFlow(ctx, sessionID, task, nil, domain.FlowOptions{})
}

// ExecuteFlow runs a flow for the session. A nil decision analyzes the task first.
func (s *Service) ExecuteFlow(ctx context.Context, sessionID, task string, decision *domain.RoutingDecision, opts domain.FlowOptions) (*domain.FlowResult, error) {
	if strings.TrimSpace(task) == "" {
		return nil, domain.InvalidRequest("task is required")
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if decision == nil {
		var err error
		decision, err = s.router.Analyze(ctx, task, sessionID, domain.AnalyzeOptions{})
		if err != nil {
			return nil, err
		}
	}
	if _, err := s.store.GetOrCreateSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.emit(ctx, sessionID, domain.EventTypeFlowPlanned, decision)
	result, err := s.router.ExecuteFlow(ctx, task, decision, sessionID, opts)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, sessionID, domain.EventTypeFlowFinished, map[string]interface{}{
		"completed":   result.Completed,
		"stopped_at":  result.StoppedAt,
		"stop_reason": result.StopReason,
	})
	if result.Completed {
		s.completeIfDone(ctx, sessionID)
	}
	return result, nil
}

// completeIfDone marks an active session completed once its route is finished.
func (s *Service) completeIfDone(ctx context.Context, sessionID string) {
	progress, err := s.guard.Progress(ctx, sessionID)
	if err != nil || !progress.Complete {
		return
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil || session == nil || session.Status != domain.SessionStatusActive {
		return
	}
	if err := s.setStatus(ctx, sessionID, domain.SessionStatusCompleted); err != nil {
		log.Printf("WARN: failed to complete session %s: %v", sessionID, err)
	}
}

// withContext appends session context entries to the eye input in key order.
func withContext(input string, session *domain.Session) string {
	if session == nil || len(session.Context) == 0 {
		return input
	}
	keys := make([]string, 0, len(session.Context))
	for k := range session.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(input)
	b.WriteString("\n\n--- session context ---\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, session.Context[k].Value)
	}
	return b.String()
}
