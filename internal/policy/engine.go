// Package policy evaluates eye admission rules with OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by the admission policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// Input is the document the admission policy evaluates.
type Input struct {
	Eye           string   `json:"eye"`
	SessionID     string   `json:"session_id"`
	SessionStatus string   `json:"session_status"`
	DisabledEyes  []string `json:"disabled_eyes"`
	Rerun         bool     `json:"rerun"`
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.eye_admission"),
		rego.Module("eye_admission.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks whether an eye may be invoked.
// Returns: decision (allow, block), reason (optional), error
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, string, error) {
	if input.DisabledEyes == nil {
		input.DisabledEyes = []string{}
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "default", nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return DecisionAllow, "unexpected return type", nil
	}
	decision, _ := doc["decision"].(string)
	reason, _ := doc["reason"].(string)
	if decision == "" {
		decision = DecisionAllow
	}
	return decision, reason, nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package eye_admission

import rego.v1

default decision = "allow"

default reason = ""

# Kill switch: a killed session accepts no new eye invocations.
reason = "session killed" if {
	input.session_status == "killed"
}

reason = "eye disabled" if {
	input.session_status != "killed"
	input.eye in input.disabled_eyes
}

decision = "block" if {
	reason != ""
}
`
