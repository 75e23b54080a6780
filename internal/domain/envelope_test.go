package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelopeFenced(t *testing.T) {
	raw := "```json\n{\"eye\":\"sharingan\",\"ok\":false,\"code\":\"need_clarification\",\"md\":\"Which DB?\",\"data\":{\"questions\":[\"Which DB?\"],\"confidence\":40},\"next\":\"AWAIT_INPUT\"}\n```"

	env, err := ParseEnvelope(raw, EyeSharingan)
	require.NoError(t, err)
	assert.Equal(t, EyeSharingan, env.Eye)
	assert.Equal(t, CodeNeedClarification, env.Code)
	assert.Equal(t, KindPause, env.Kind)
	assert.False(t, env.Advances())
	require.NotNil(t, env.Next)
	assert.Equal(t, NextAwaitInput, *env.Next)

	conf, ok := env.Confidence()
	assert.True(t, ok)
	assert.Equal(t, 40.0, conf)
}

func TestParseEnvelopeRejectsContractViolations(t *testing.T) {
	cases := map[string]string{
		"not json":      "I think this looks fine",
		"missing ok":    `{"eye":"rinnegan","code":"OK","md":"fine"}`,
		"missing code":  `{"eye":"rinnegan","ok":true,"md":"fine"}`,
		"missing text":  `{"eye":"rinnegan","ok":true,"code":"OK"}`,
		"wrong eye":     `{"eye":"byakugan","ok":true,"code":"OK","md":"fine"}`,
		"data not map":  `{"eye":"rinnegan","ok":true,"code":"OK","md":"fine","data":[1,2]}`,
		"broken object": `{"eye":"rinnegan","ok":true,`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEnvelope(raw, EyeRinnegan)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidEnvelope))
		})
	}
}

func TestParseEnvelopeFillsMissingEye(t *testing.T) {
	env, err := ParseEnvelope(`{"ok":true,"code":"OK","summary":"plan is sound","next":"mangekyo"}`, EyeRinnegan)
	require.NoError(t, err)
	assert.Equal(t, EyeRinnegan, env.Eye)
	assert.Equal(t, "plan is sound", env.Text())
	assert.True(t, env.Advances())
}

func TestEnvelopeAdvancement(t *testing.T) {
	cases := []struct {
		code     string
		ok       bool
		kind     EnvelopeKind
		advances bool
	}{
		{CodeOK, true, KindOK, true},
		{CodeApproved, true, KindApproved, true},
		{CodeNeedClarification, false, KindPause, false},
		// a pause never advances even if the provider claims ok
		{CodeAwaitRevision, true, KindPause, false},
		{CodeNeedsRevision, false, KindRevision, false},
		{CodeClarificationResolved, false, KindResolution, true},
		{CodeError, false, KindError, false},
		{"SOMETHING_NEW", false, KindUnknown, false},
		{"SOMETHING_NEW", true, KindUnknown, true},
	}
	for _, tc := range cases {
		env := &Envelope{OK: tc.ok, Code: tc.code, Kind: ClassifyCode(tc.code)}
		assert.Equal(t, tc.kind, env.Kind, tc.code)
		assert.Equal(t, tc.advances, env.Advances(), tc.code)
	}
}

func TestUnknownCodeKeepsRawData(t *testing.T) {
	env, err := ParseEnvelope(`{"eye":"jogan","ok":false,"code":"SCOPE_DRIFT","md":"scope moved","data":{"drift":0.4}}`, EyeJogan)
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, env.Kind)
	assert.JSONEq(t, `{"drift":0.4}`, string(env.Raw))
}

func TestUnknownCodeKeepsNonObjectData(t *testing.T) {
	env, err := ParseEnvelope(`{"eye":"jogan","ok":true,"code":"SCOPE_LIST","md":"scopes","data":["api","db"]}`, EyeJogan)
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, env.Kind)
	assert.JSONEq(t, `["api","db"]`, string(env.Raw))
	assert.Nil(t, env.Data)

	_, err = ParseEnvelope(`{"eye":"jogan","ok":true,"code":"OK","md":"scopes","data":["api","db"]}`, EyeJogan)
	assert.True(t, errors.Is(err, ErrInvalidEnvelope))
}

func TestSessionStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to SessionStatus
		ok       bool
	}{
		{SessionStatusActive, SessionStatusCompleted, true},
		{SessionStatusActive, SessionStatusFailed, true},
		{SessionStatusActive, SessionStatusKilled, true},
		{SessionStatusCompleted, SessionStatusKilled, true},
		{SessionStatusFailed, SessionStatusKilled, true},
		{SessionStatusKilled, SessionStatusCompleted, false},
		{SessionStatusKilled, SessionStatusActive, false},
		{SessionStatusCompleted, SessionStatusFailed, false},
		{SessionStatusCompleted, SessionStatusActive, false},
		{SessionStatusActive, SessionStatus("paused"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}
