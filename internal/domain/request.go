package domain

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	SessionID string            `json:"session_id,omitempty"`
	Route     []Eye             `json:"route,omitempty"`
	RouteName string            `json:"route_name,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}

// AddContextRequest adds or replaces one context key.
type AddContextRequest struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source,omitempty"`
}

// SubmitRequest is the pipeline entry point. Either Task or Eye+Input is set.
type SubmitRequest struct {
	SessionID string `json:"session_id"`
	Task      string `json:"task,omitempty"`
	Eye       Eye    `json:"eye,omitempty"`
	Input     string `json:"input,omitempty"`
}

// RerunRequest asks for a supervised re-run of a completed eye.
type RerunRequest struct {
	SessionID string `json:"session_id"`
	Eye       Eye    `json:"eye"`
	Input     string `json:"input"`
	Reason    string `json:"reason"`
}

// EyeRunResponse is the direct-eye result.
type EyeRunResponse struct {
	SessionID string     `json:"session_id"`
	Envelope  *Envelope  `json:"envelope,omitempty"`
	Violation *Violation `json:"violation,omitempty"`
}

// AnalyzeOptions tunes task analysis.
type AnalyzeOptions struct {
	CreateSession bool `json:"create_session,omitempty"`
}

// AnalyzeRequest is the request body for task analysis.
type AnalyzeRequest struct {
	Task      string         `json:"task"`
	SessionID string         `json:"session_id,omitempty"`
	Options   AnalyzeOptions `json:"options,omitempty"`
}

// Task classification values.
const (
	TaskTypeImplementation = "implementation"
	TaskTypePlanning       = "planning"
	TaskTypeContent        = "content"
	TaskTypeFactCheck      = "fact_check"
	TaskTypeReview         = "review"
	TaskTypeClarification  = "clarification"

	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

// RoutingDecision is the result of task analysis.
type RoutingDecision struct {
	SessionID       string `json:"session_id,omitempty"`
	TaskType        string `json:"task_type"`
	Domain          string `json:"domain"`
	Complexity      string `json:"complexity"`
	RecommendedFlow []Eye  `json:"recommended_flow"`
	Reasoning       string `json:"reasoning"`
}

// FlowOptions tunes flow execution.
type FlowOptions struct {
	// StartAt resumes the flow at the given step index.
	StartAt int `json:"start_at,omitempty"`
}

// FlowStep is the outcome of one step of an executed flow.
type FlowStep struct {
	Eye       Eye        `json:"eye"`
	Envelope  *Envelope  `json:"envelope,omitempty"`
	Violation *Violation `json:"violation,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Flow stop reasons.
const (
	StopPause     = "pause"
	StopRevision  = "needs_revision"
	StopViolation = "order_violation"
	StopError     = "error"
	StopRejected  = "not_advanced"
	// StopRouteComplete means every step of the bound route had already advanced.
	StopRouteComplete = "route_complete"
)

// FlowResult aggregates an executed flow.
type FlowResult struct {
	SessionID  string           `json:"session_id"`
	Decision   *RoutingDecision `json:"decision,omitempty"`
	Completed  bool             `json:"completed"`
	Results    []FlowStep       `json:"results"`
	StoppedAt  *int             `json:"stopped_at,omitempty"`
	StopReason string           `json:"stop_reason,omitempty"`
}

// StatusResponse is the session status view.
type StatusResponse struct {
	Session          *Session          `json:"session"`
	PipelineProgress *PipelineProgress `json:"pipeline_progress"`
}

// DuelRequest launches a synchronous race.
type DuelRequest struct {
	Prompt  string       `json:"prompt"`
	Eye     Eye          `json:"eye"`
	Configs []DuelConfig `json:"configs"`
}

// BackgroundDuelRequest launches an asynchronous A/B duel.
type BackgroundDuelRequest struct {
	Eye        Eye        `json:"eye"`
	ModelA     DuelConfig `json:"model_a"`
	ModelB     DuelConfig `json:"model_b"`
	Input      string     `json:"input"`
	Iterations int        `json:"iterations"`
}

// BackgroundDuelResponse is returned immediately when a background duel starts.
type BackgroundDuelResponse struct {
	DuelID string     `json:"duel_id"`
	Status DuelStatus `json:"status"`
}

// PersonaRequest creates a new persona version.
type PersonaRequest struct {
	Content string `json:"content"`
}
