// Package orderguard enforces legal eye ordering within a session.
package orderguard

import (
	"context"
	"fmt"
	"log"

	"github.com/xiaot623/thirdeye/internal/domain"
	"github.com/xiaot623/thirdeye/internal/eyes"
	"github.com/xiaot623/thirdeye/internal/metrics"
	"github.com/xiaot623/thirdeye/internal/policy"
)

// Store is the subset of persistence the guard needs.
type Store interface {
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetRoute(ctx context.Context, name string) (*domain.Route, error)
	AppendProgress(ctx context.Context, entry *domain.ProgressEntry) error
	ListProgress(ctx context.Context, sessionID string) ([]domain.ProgressEntry, error)
}

// Admission decides whether an eye may be invoked at all.
type Admission interface {
	Evaluate(ctx context.Context, input policy.Input) (string, string, error)
}

// Options configures ordering behaviour.
type Options struct {
	// StrictOrder rejects eyes for sessions without a route unless DefaultRoute resolves.
	StrictOrder  bool
	DefaultRoute string
	DisabledEyes []string
}

// StepFunc executes an eye once the guard has admitted it.
type StepFunc func(ctx context.Context) (*domain.Envelope, error)

// Guard validates and records eye completions, serialised per session.
type Guard struct {
	store     Store
	admission Admission
	registry  *eyes.Registry
	opts      Options
	locks     *keyedMutex
}

// New creates a guard. admission may be nil.
func New(store Store, admission Admission, registry *eyes.Registry, opts Options) *Guard {
	if registry == nil {
		registry = eyes.DefaultRegistry
	}
	return &Guard{
		store:     store,
		admission: admission,
		registry:  registry,
		opts:      opts,
		locks:     newKeyedMutex(),
	}
}

type checkMode struct {
	rerun         bool
	skipAdmission bool
}

// ValidateOrder reports whether eye is legal to run next for the session.
func (g *Guard) ValidateOrder(ctx context.Context, sessionID string, eye domain.Eye) (*domain.Violation, error) {
	unlock := g.locks.Lock(sessionID)
	defer unlock()
	return g.validateLocked(ctx, sessionID, eye, checkMode{})
}

// RecordEyeCompletion appends eye to the progress log if env advances the pipeline.
// The order is re-validated, so an out-of-route completion is never recorded.
func (g *Guard) RecordEyeCompletion(ctx context.Context, sessionID string, eye domain.Eye, env *domain.Envelope) (bool, *domain.Violation, error) {
	unlock := g.locks.Lock(sessionID)
	defer unlock()

	if !env.Advances() {
		return false, nil, nil
	}
	v, err := g.validateLocked(ctx, sessionID, eye, checkMode{skipAdmission: true})
	if err != nil || v != nil {
		return false, v, err
	}
	if err := g.append(ctx, sessionID, eye, env, false, ""); err != nil {
		return false, nil, err
	}
	return true, nil, nil
}

// Guarded validates, executes fn and records the outcome in one per-session critical section.
func (g *Guard) Guarded(ctx context.Context, sessionID string, eye domain.Eye, fn StepFunc) (*domain.Envelope, *domain.Violation, error) {
	unlock := g.locks.Lock(sessionID)
	defer unlock()

	v, err := g.validateLocked(ctx, sessionID, eye, checkMode{})
	if err != nil || v != nil {
		return nil, v, err
	}

	env, err := fn(ctx)
	if err != nil {
		return nil, nil, err
	}
	if env.Advances() {
		if err := g.append(ctx, sessionID, eye, env, false, ""); err != nil {
			return env, nil, err
		}
	}
	return env, nil, nil
}

// Rerun re-executes an already completed eye as a supervised override.
// A successful rerun is audited in the progress log but never moves the route cursor.
func (g *Guard) Rerun(ctx context.Context, sessionID string, eye domain.Eye, reason string, fn StepFunc) (*domain.Envelope, *domain.Violation, error) {
	unlock := g.locks.Lock(sessionID)
	defer unlock()

	v, err := g.validateLocked(ctx, sessionID, eye, checkMode{rerun: true})
	if err != nil || v != nil {
		return nil, v, err
	}

	env, err := fn(ctx)
	if err != nil {
		return nil, nil, err
	}
	if env.Advances() {
		if err := g.append(ctx, sessionID, eye, env, true, reason); err != nil {
			return env, nil, err
		}
	}
	log.Printf("INFO: rerun of %s for session %s (reason: %s, outcome: %s)", eye, sessionID, reason, env.Code)
	return env, nil, nil
}

// Progress returns the derived pipeline progress for a session.
func (g *Guard) Progress(ctx context.Context, sessionID string) (*domain.PipelineProgress, error) {
	session, err := g.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	progress, _, err := g.progress(ctx, sessionID, session)
	return progress, err
}

func (g *Guard) progress(ctx context.Context, sessionID string, session *domain.Session) (*domain.PipelineProgress, *domain.Route, error) {
	entries, err := g.store.ListProgress(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list progress: %w", err)
	}
	route, err := g.resolveRoute(ctx, session)
	if err != nil {
		return nil, nil, err
	}

	p := &domain.PipelineProgress{
		SessionID: sessionID,
		Strict:    g.opts.StrictOrder,
		Entries:   entries,
	}
	if p.Entries == nil {
		p.Entries = []domain.ProgressEntry{}
	}
	if route == nil {
		p.Permissive = !g.opts.StrictOrder
		p.CurrentlyAllowed = []domain.Eye{}
		return p, nil, nil
	}

	p.Route = route.Steps
	p.RouteName = route.Name
	pos := cursor(route.Steps, entries)
	switch {
	case pos < 0:
		p.CurrentlyAllowed = union(route.EntryEyes(), g.registry.EntryEyes())
	case pos >= len(route.Steps)-1:
		p.Complete = true
		p.CurrentlyAllowed = []domain.Eye{}
	default:
		p.CurrentlyAllowed = []domain.Eye{route.Steps[pos+1]}
	}
	return p, route, nil
}

// resolveRoute returns the session route, the configured default route in strict
// mode, or nil when neither applies.
func (g *Guard) resolveRoute(ctx context.Context, session *domain.Session) (*domain.Route, error) {
	if session != nil && len(session.Route) > 0 {
		return &domain.Route{Name: session.RouteName, Steps: session.Route}, nil
	}
	if !g.opts.StrictOrder || g.opts.DefaultRoute == "" {
		return nil, nil
	}
	route, err := g.store.GetRoute(ctx, g.opts.DefaultRoute)
	if err != nil {
		return nil, fmt.Errorf("failed to get default route: %w", err)
	}
	if route == nil || len(route.Steps) == 0 {
		return nil, nil
	}
	return route, nil
}

func (g *Guard) validateLocked(ctx context.Context, sessionID string, eye domain.Eye, mode checkMode) (*domain.Violation, error) {
	if !g.registry.Has(eye) {
		return &domain.Violation{SessionID: sessionID, Got: eye, Reason: domain.ReasonUnknownEye}, nil
	}

	session, err := g.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if g.admission != nil && !mode.skipAdmission {
		status := domain.SessionStatusActive
		if session != nil {
			status = session.Status
		}
		decision, reason, err := g.admission.Evaluate(ctx, policy.Input{
			Eye:           string(eye),
			SessionID:     sessionID,
			SessionStatus: string(status),
			DisabledEyes:  g.opts.DisabledEyes,
			Rerun:         mode.rerun,
		})
		if err != nil {
			return nil, err
		}
		if decision == policy.DecisionBlock {
			log.Printf("WARN: admission blocked %s for session %s: %s", eye, sessionID, reason)
			metrics.OrderViolations.WithLabelValues("blocked").Inc()
			return &domain.Violation{SessionID: sessionID, Got: eye, Reason: reason, Blocked: true}, nil
		}
	}

	progress, route, err := g.progress(ctx, sessionID, session)
	if err != nil {
		return nil, err
	}

	if route == nil {
		if g.opts.StrictOrder {
			return g.violation(sessionID, eye, nil, domain.ReasonNoRoute), nil
		}
		log.Printf("INFO: session %s has no route, accepting %s in permissive mode", sessionID, eye)
		return nil, nil
	}

	if mode.rerun {
		if !progress.HasCompleted(eye) {
			return g.violation(sessionID, eye, progress.CurrentlyAllowed, domain.ReasonNotYetCompleted), nil
		}
		return nil, nil
	}

	if progress.Complete {
		return g.violation(sessionID, eye, nil, domain.ReasonRouteComplete), nil
	}
	for _, allowed := range progress.CurrentlyAllowed {
		if allowed == eye {
			return nil, nil
		}
	}
	reason := domain.ReasonOutOfOrder
	if !contains(route.Steps, eye) {
		reason = domain.ReasonNotInRoute
	}
	return g.violation(sessionID, eye, progress.CurrentlyAllowed, reason), nil
}

func (g *Guard) violation(sessionID string, got domain.Eye, expected []domain.Eye, reason string) *domain.Violation {
	if expected == nil {
		expected = []domain.Eye{}
	}
	log.Printf("WARN: order violation for session %s: got %s, expected %v (%s)", sessionID, got, expected, reason)
	metrics.OrderViolations.WithLabelValues(reason).Inc()
	return &domain.Violation{SessionID: sessionID, Expected: expected, Got: got, Reason: reason}
}

func (g *Guard) append(ctx context.Context, sessionID string, eye domain.Eye, env *domain.Envelope, rerun bool, reason string) error {
	entry := &domain.ProgressEntry{
		SessionID: sessionID,
		Eye:       eye,
		Outcome:   env.Code,
		Rerun:     rerun,
		Reason:    reason,
	}
	if err := g.store.AppendProgress(ctx, entry); err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	return nil
}

// cursor returns the index of the furthest route step reached, or -1.
// Entries for eyes outside the route and rerun entries do not move it.
func cursor(steps []domain.Eye, entries []domain.ProgressEntry) int {
	pos := -1
	for _, e := range entries {
		if e.Rerun {
			continue
		}
		for i := pos + 1; i < len(steps); i++ {
			if steps[i] == e.Eye {
				pos = i
				break
			}
		}
	}
	return pos
}

func contains(list []domain.Eye, eye domain.Eye) bool {
	for _, e := range list {
		if e == eye {
			return true
		}
	}
	return false
}

func union(a, b []domain.Eye) []domain.Eye {
	out := make([]domain.Eye, 0, len(a)+len(b))
	for _, e := range a {
		if !contains(out, e) {
			out = append(out, e)
		}
	}
	for _, e := range b {
		if !contains(out, e) {
			out = append(out, e)
		}
	}
	return out
}
