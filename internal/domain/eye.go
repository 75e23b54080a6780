// Package domain defines the core domain models for the pipeline orchestrator.
package domain

// Eye identifies a validation agent.
type Eye string

const (
	EyeOverseer     Eye = "overseer"
	EyeSharingan    Eye = "sharingan"
	EyePromptHelper Eye = "prompt_helper"
	EyeJogan        Eye = "jogan"
	EyeRinnegan     Eye = "rinnegan"
	EyeMangekyo     Eye = "mangekyo"
	EyeTenseigan    Eye = "tenseigan"
	EyeByakugan     Eye = "byakugan"
)

// Stage is the pipeline stage an Eye belongs to.
type Stage string

const (
	StageEntry     Stage = "entry"
	StageClarify   Stage = "clarify"
	StagePlan      Stage = "plan"
	StageImplement Stage = "implement"
	StageCite      Stage = "cite"
	StageApprove   Stage = "approve"
)

// EyeDescriptor describes a registered Eye.
type EyeDescriptor struct {
	Name        Eye    `json:"name"`
	Stage       Stage  `json:"stage"`
	Description string `json:"description"`
	// Entry eyes may run before any other step of a session.
	Entry bool `json:"entry"`
}

// EyesToStrings converts a list of eyes to plain strings.
func EyesToStrings(eyes []Eye) []string {
	out := make([]string, len(eyes))
	for i, e := range eyes {
		out[i] = string(e)
	}
	return out
}

// StringsToEyes converts plain strings to eyes.
func StringsToEyes(values []string) []Eye {
	out := make([]Eye, len(values))
	for i, v := range values {
		out[i] = Eye(v)
	}
	return out
}
