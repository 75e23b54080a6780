package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Outcome codes returned by eyes.
const (
	CodeOK                    = "OK"
	CodeApproved              = "APPROVED"
	CodeNeedClarification     = "NEED_CLARIFICATION"
	CodeNeedMoreContext       = "NEED_MORE_CONTEXT"
	CodeAwaitInput            = "AWAIT_INPUT"
	CodeAwaitRevision         = "AWAIT_REVISION"
	CodeNeedsRevision         = "NEEDS_REVISION"
	CodeRejected              = "REJECTED"
	CodeError                 = "ERROR"
	CodeClarificationResolved = "CLARIFICATION_RESOLVED"
	CodeRevisionAccepted      = "REVISION_ACCEPTED"
)

// Next-step pseudo states.
const (
	NextAwaitInput    = "AWAIT_INPUT"
	NextAwaitRevision = "AWAIT_REVISION"
	NextEnd           = "END"
)

// EnvelopeKind is the closed set of envelope variants, keyed by code.
type EnvelopeKind string

const (
	KindApproved   EnvelopeKind = "approved"
	KindOK         EnvelopeKind = "ok"
	KindPause      EnvelopeKind = "pause"
	KindRevision   EnvelopeKind = "revision"
	KindResolution EnvelopeKind = "resolution"
	KindError      EnvelopeKind = "error"
	KindUnknown    EnvelopeKind = "unknown"
)

// Envelope is the structured result of every eye invocation.
type Envelope struct {
	Eye     Eye                    `json:"eye"`
	OK      bool                   `json:"ok"`
	Code    string                 `json:"code"`
	MD      string                 `json:"md,omitempty"`
	Summary string                 `json:"summary,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Next    *string                `json:"next"`
	Kind    EnvelopeKind           `json:"kind"`
	// Raw holds the original data payload for unknown codes.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// ClassifyCode maps an outcome code onto its envelope kind.
func ClassifyCode(code string) EnvelopeKind {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch {
	case code == CodeApproved:
		return KindApproved
	case code == CodeOK || strings.HasPrefix(code, "OK_"):
		return KindOK
	case IsPauseCode(code):
		return KindPause
	case code == CodeNeedsRevision || code == CodeRejected || strings.HasPrefix(code, "REJECT_"):
		return KindRevision
	case code == CodeClarificationResolved || code == CodeRevisionAccepted:
		return KindResolution
	case code == CodeError || strings.HasPrefix(code, "E_"):
		return KindError
	default:
		return KindUnknown
	}
}

// IsPauseCode reports whether code requires external resolution before the flow continues.
func IsPauseCode(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	return code == CodeNeedClarification || code == CodeNeedMoreContext || strings.HasPrefix(code, "AWAIT_")
}

// IsPause reports whether the envelope pauses the pipeline.
func (e *Envelope) IsPause() bool {
	return e != nil && e.Kind == KindPause
}

// NeedsRevision reports whether the eye asked for a revision.
func (e *Envelope) NeedsRevision() bool {
	return e != nil && e.Kind == KindRevision
}

// Advances reports whether the envelope moves pipeline state forward.
// A pause never advances, even when the provider also sets ok=true.
func (e *Envelope) Advances() bool {
	if e == nil || e.Kind == KindPause {
		return false
	}
	return e.OK || e.Kind == KindResolution
}

// IsApproval reports whether the code is approval-equivalent.
func (e *Envelope) IsApproval() bool {
	return e != nil && (e.Kind == KindApproved || e.Kind == KindOK)
}

// Confidence returns data.confidence when the provider supplied a number.
func (e *Envelope) Confidence() (float64, bool) {
	if e == nil || e.Data == nil {
		return 0, false
	}
	switch v := e.Data["confidence"].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Text returns md, falling back to summary.
func (e *Envelope) Text() string {
	if e.MD != "" {
		return e.MD
	}
	return e.Summary
}

type rawEnvelope struct {
	Eye     string          `json:"eye"`
	OK      *bool           `json:"ok"`
	Code    string          `json:"code"`
	MD      string          `json:"md"`
	Summary string          `json:"summary"`
	Data    json.RawMessage `json:"data"`
	Next    *string         `json:"next"`
}

// ParseEnvelope parses provider output into an envelope for the given eye.
// Output may be wrapped in a markdown code fence. Anything that does not
// satisfy the envelope contract is rejected with ErrInvalidEnvelope.
func ParseEnvelope(raw string, eye Eye) (*Envelope, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrInvalidEnvelope)
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var r rawEnvelope
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if r.OK == nil {
		return nil, fmt.Errorf("%w: missing ok", ErrInvalidEnvelope)
	}
	if strings.TrimSpace(r.Code) == "" {
		return nil, fmt.Errorf("%w: missing code", ErrInvalidEnvelope)
	}
	if r.Eye != "" && eye != "" && Eye(r.Eye) != eye {
		return nil, fmt.Errorf("%w: envelope from %q, expected %q", ErrInvalidEnvelope, r.Eye, eye)
	}
	if r.MD == "" && r.Summary == "" {
		return nil, fmt.Errorf("%w: missing md/summary", ErrInvalidEnvelope)
	}

	env := &Envelope{
		Eye:     eye,
		OK:      *r.OK,
		Code:    strings.ToUpper(strings.TrimSpace(r.Code)),
		MD:      r.MD,
		Summary: r.Summary,
		Next:    r.Next,
	}
	if env.Eye == "" {
		env.Eye = Eye(r.Eye)
	}
	env.Kind = ClassifyCode(env.Code)

	payload := bytes.TrimSpace(r.Data)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return env, nil
	}
	if env.Kind == KindUnknown {
		// Unknown codes keep their payload verbatim, whatever its shape.
		env.Raw = append(json.RawMessage(nil), payload...)
		if payload[0] != '{' {
			return env, nil
		}
	}
	data := make(map[string]interface{})
	ddec := json.NewDecoder(bytes.NewReader(payload))
	ddec.UseNumber()
	if err := ddec.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: data must be an object", ErrInvalidEnvelope)
	}
	env.Data = normalizeNumbers(data).(map[string]interface{})
	return env, nil
}

func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func normalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalizeNumbers(val)
		}
		return t
	case []interface{}:
		for i, val := range t {
			t[i] = normalizeNumbers(val)
		}
		return t
	default:
		return v
	}
}

// NewErrorEnvelope builds the envelope reported for a failed step.
func NewErrorEnvelope(eye Eye, err error) *Envelope {
	next := NextAwaitInput
	return &Envelope{
		Eye:  eye,
		OK:   false,
		Code: CodeError,
		MD:   err.Error(),
		Next: &next,
		Kind: KindError,
	}
}
