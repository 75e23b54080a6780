// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/xiaot623/thirdeye/internal/config"
	"github.com/xiaot623/thirdeye/internal/domain"
	"github.com/xiaot623/thirdeye/internal/repository"
)

// NewTestStore creates an in-memory SQL store closed at test cleanup.
func NewTestStore(t *testing.T) *repository.SQLStore {
	t.Helper()
	store, err := repository.NewSQLStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// NewSeededStore creates an in-memory store loaded with the embedded default seed.
func NewSeededStore(t *testing.T) *repository.SQLStore {
	t.Helper()
	store := NewTestStore(t)
	seed, err := config.LoadSeed("")
	if err != nil {
		t.Fatalf("failed to load seed: %v", err)
	}
	if _, err := repository.ApplySeed(context.Background(), store, seed); err != nil {
		t.Fatalf("failed to apply seed: %v", err)
	}
	return store
}

// CreateSession creates an active session with an optional route.
func CreateSession(t *testing.T, store repository.Store, sessionID string, route ...domain.Eye) *domain.Session {
	t.Helper()
	session := &domain.Session{SessionID: sessionID, Route: route}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return session
}

// Envelope builds a classified envelope for tests.
func Envelope(eye domain.Eye, ok bool, code string) *domain.Envelope {
	return &domain.Envelope{
		Eye:  eye,
		OK:   ok,
		Code: code,
		MD:   string(eye) + " " + code,
		Kind: domain.ClassifyCode(code),
	}
}
