package domain

import "time"

// DuelMode distinguishes synchronous races from background duels.
type DuelMode string

const (
	DuelModeRace       DuelMode = "race"
	DuelModeBackground DuelMode = "background"
)

// DuelStatus is the persisted state of a duel.
type DuelStatus string

const (
	DuelStatusPending   DuelStatus = "pending"
	DuelStatusRunning   DuelStatus = "running"
	DuelStatusCompleted DuelStatus = "completed"
	DuelStatusFailed    DuelStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s DuelStatus) Terminal() bool {
	return s == DuelStatusCompleted || s == DuelStatusFailed
}

// Background duel winners.
const (
	WinnerModelA = "modelA"
	WinnerModelB = "modelB"
	WinnerTie    = "tie"
)

// DuelConfig is one competitor in a duel.
type DuelConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Label    string `json:"label,omitempty"`
}

// Target returns the provider/model pair.
func (c DuelConfig) Target() Target {
	return Target{Provider: c.Provider, Model: c.Model}
}

// DuelLegResult is the outcome of one competitor.
type DuelLegResult struct {
	Label      string    `json:"label"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Output     *Envelope `json:"output,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	TokensIn   int       `json:"tokens_in"`
	TokensOut  int       `json:"tokens_out"`
	Verdict    string    `json:"verdict"`
	Confidence *float64  `json:"confidence,omitempty"`
	Score      float64   `json:"score"`
	Error      string    `json:"error,omitempty"`
	Done       bool      `json:"done"`
}

// DuelSummary aggregates a background duel.
type DuelSummary struct {
	ApprovalsA   int     `json:"approvals_a"`
	ApprovalsB   int     `json:"approvals_b"`
	AvgLatencyA  float64 `json:"avg_latency_a_ms"`
	AvgLatencyB  float64 `json:"avg_latency_b_ms"`
	Winner       string  `json:"winner,omitempty"`
	RoundsPlayed int     `json:"rounds_played"`
}

// DuelRun is the persisted record of a duel.
type DuelRun struct {
	DuelID     string          `json:"duel_id"`
	Mode       DuelMode        `json:"mode"`
	Eye        Eye             `json:"eye"`
	Prompt     string          `json:"prompt"`
	Configs    []DuelConfig    `json:"configs"`
	Results    []DuelLegResult `json:"results"`
	Ranking    []string        `json:"ranking,omitempty"`
	Status     DuelStatus      `json:"status"`
	Iterations int             `json:"iterations,omitempty"`
	Summary    *DuelSummary    `json:"summary,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
