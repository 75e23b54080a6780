package domain

import "time"

// ProgressEntry is one append-only record in a session's pipeline log.
type ProgressEntry struct {
	SessionID   string    `json:"session_id"`
	Seq         int       `json:"seq"`
	Eye         Eye       `json:"eye"`
	Outcome     string    `json:"outcome"`
	CompletedAt time.Time `json:"completed_at"`
	// Rerun marks a supervised override; reruns never move the route cursor.
	Rerun  bool   `json:"rerun,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// PipelineProgress is the derived view of a session's pipeline.
type PipelineProgress struct {
	SessionID        string          `json:"session_id"`
	Route            []Eye           `json:"route,omitempty"`
	RouteName        string          `json:"route_name,omitempty"`
	Strict           bool            `json:"strict"`
	Entries          []ProgressEntry `json:"entries"`
	CurrentlyAllowed []Eye           `json:"currently_allowed"`
	// Permissive is set when no route applies and any order is accepted.
	Permissive bool `json:"permissive"`
	Complete   bool `json:"complete"`
}

// LastCompleted returns the most recent non-rerun entry, if any.
func (p *PipelineProgress) LastCompleted() *ProgressEntry {
	for i := len(p.Entries) - 1; i >= 0; i-- {
		if !p.Entries[i].Rerun {
			return &p.Entries[i]
		}
	}
	return nil
}

// HasCompleted reports whether eye has a non-rerun entry.
func (p *PipelineProgress) HasCompleted(eye Eye) bool {
	for _, e := range p.Entries {
		if e.Eye == eye && !e.Rerun {
			return true
		}
	}
	return false
}

// Violation is returned when a requested eye is not legal to run next.
// It is a value, not an error: callers decide how to surface it.
type Violation struct {
	SessionID string `json:"session_id"`
	Expected  []Eye  `json:"expected"`
	Got       Eye    `json:"got"`
	Reason    string `json:"reason"`
	// Blocked is set when admission policy, not ordering, refused the eye.
	Blocked bool `json:"blocked,omitempty"`
}

// Violation reasons.
const (
	ReasonOutOfOrder      = "out_of_order"
	ReasonNoRoute         = "no route configured"
	ReasonRouteComplete   = "route complete"
	ReasonNotInRoute      = "eye not in route"
	ReasonUnknownEye      = "unknown eye"
	ReasonNotYetCompleted = "rerun requires a completed eye"
)
