package domain

import "time"

// RoutingEntry configures the provider/model pair used for an eye.
type RoutingEntry struct {
	Eye              Eye      `json:"eye"`
	PrimaryProvider  string   `json:"primary_provider"`
	PrimaryModel     string   `json:"primary_model"`
	FallbackProvider string   `json:"fallback_provider,omitempty"`
	FallbackModel    string   `json:"fallback_model,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
}

// Primary returns the primary target.
func (r *RoutingEntry) Primary() Target {
	return Target{Provider: r.PrimaryProvider, Model: r.PrimaryModel}
}

// Fallback returns the fallback target, or false when none is configured.
func (r *RoutingEntry) Fallback() (Target, bool) {
	if r.FallbackProvider == "" || r.FallbackModel == "" {
		return Target{}, false
	}
	return Target{Provider: r.FallbackProvider, Model: r.FallbackModel}, true
}

// Target is a concrete provider/model pair.
type Target struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (t Target) String() string {
	return t.Provider + "/" + t.Model
}

// Persona is a versioned system prompt for an eye. One version per eye is active.
type Persona struct {
	Eye       Eye       `json:"eye"`
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Route is a named pipeline definition.
type Route struct {
	Name  string `json:"name"`
	Steps []Eye  `json:"steps"`
	// Entry lists eyes legal as the first step; defaults to Steps[0].
	Entry     []Eye     `json:"entry,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntryEyes returns the eyes legal before any progress exists.
func (r *Route) EntryEyes() []Eye {
	if len(r.Entry) > 0 {
		return r.Entry
	}
	if len(r.Steps) > 0 {
		return []Eye{r.Steps[0]}
	}
	return nil
}
