package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xiaot623/thirdeye/internal/domain"
	"github.com/xiaot623/thirdeye/internal/service"
)

// Handler implements the ThirdEye RPC methods.
type Handler struct {
	service *service.Service
	timeout time.Duration
}

// SubmitArgs submits a task for flow execution.
type SubmitArgs struct {
	SessionID string `json:"session_id"`
	Task      string `json:"task"`
}

// StatusArgs identifies a session.
type StatusArgs struct {
	SessionID string `json:"session_id"`
}

// RunEye invokes a single eye. An order violation is returned in the response, not as an error.
func (h *Handler) RunEye(args *domain.SubmitRequest, reply *domain.EyeRunResponse) error {
	return invoke(h, args, reply, func(ctx context.Context, req domain.SubmitRequest) (*domain.EyeRunResponse, error) {
		return h.service.RunEye(ctx, req)
	})
}

// Submit analyzes a task and executes its flow.
func (h *Handler) Submit(args *SubmitArgs, reply *domain.FlowResult) error {
	return invoke(h, args, reply, func(ctx context.Context, req SubmitArgs) (*domain.FlowResult, error) {
		return h.service.Submit(ctx, req.SessionID, req.Task)
	})
}

// Analyze classifies a task.
func (h *Handler) Analyze(args *domain.AnalyzeRequest, reply *domain.RoutingDecision) error {
	return invoke(h, args, reply, func(ctx context.Context, req domain.AnalyzeRequest) (*domain.RoutingDecision, error) {
		return h.service.Analyze(ctx, req)
	})
}

// Status returns a session and its pipeline progress.
func (h *Handler) Status(args *StatusArgs, reply *domain.StatusResponse) error {
	return invoke(h, args, reply, func(ctx context.Context, req StatusArgs) (*domain.StatusResponse, error) {
		if req.SessionID == "" {
			return nil, domain.InvalidRequest("session_id is required")
		}
		return h.service.Status(ctx, req.SessionID)
	})
}

// invoke runs fn under the call timeout and copies its result into reply.
func invoke[A, R any](h *Handler, args *A, reply *R, fn func(context.Context, A) (*R, error)) error {
	if args == nil {
		return wireError(domain.InvalidRequest("arguments are required"))
	}
	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if h.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
	}
	defer cancel()

	out, err := fn(ctx, *args)
	if err != nil {
		return wireError(err)
	}
	if reply != nil && out != nil {
		*reply = *out
	}
	return nil
}

// wireError prefixes the message with a stable kind, since JSON-RPC errors travel as plain strings.
func wireError(err error) error {
	var cfgErr *domain.ConfigError
	var provErr *domain.ProviderError
	kind := "internal"
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		kind = "invalid_request"
	case errors.Is(err, domain.ErrNotFound):
		kind = "not_found"
	case errors.As(err, &cfgErr):
		kind = "configuration"
	case errors.As(err, &provErr):
		kind = "provider"
	case errors.Is(err, context.DeadlineExceeded):
		kind = "timeout"
	}
	return fmt.Errorf("%s: %w", kind, err)
}
