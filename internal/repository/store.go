// Package repository defines the storage interface and its SQL implementation.
package repository

import (
	"context"
	"time"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetOrCreateSession(ctx context.Context, sessionID string) (*domain.Session, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error
	TransitionSessionStatus(ctx context.Context, sessionID string, from, to domain.SessionStatus) (bool, error)
	SetSessionRoute(ctx context.Context, sessionID, routeName string, route []domain.Eye) error
	ListSessions(ctx context.Context, limit int) ([]domain.Session, error)
	DeleteSessionsBefore(ctx context.Context, before time.Time) (int64, error)

	// Context operations
	SetContext(ctx context.Context, sessionID, key string, entry domain.ContextEntry) error
	RemoveContext(ctx context.Context, sessionID, key string) (bool, error)

	// Progress operations
	AppendProgress(ctx context.Context, entry *domain.ProgressEntry) error
	ListProgress(ctx context.Context, sessionID string) ([]domain.ProgressEntry, error)

	// Persona operations
	CreatePersona(ctx context.Context, persona *domain.Persona) error
	GetActivePersona(ctx context.Context, eye domain.Eye) (*domain.Persona, error)
	ListPersonaVersions(ctx context.Context, eye domain.Eye) ([]domain.Persona, error)

	// Routing operations
	UpsertRouting(ctx context.Context, entry *domain.RoutingEntry) error
	GetRouting(ctx context.Context, eye domain.Eye) (*domain.RoutingEntry, error)
	ListRouting(ctx context.Context) ([]domain.RoutingEntry, error)

	// Route definition operations
	UpsertRoute(ctx context.Context, route *domain.Route) error
	GetRoute(ctx context.Context, name string) (*domain.Route, error)
	ListRoutes(ctx context.Context) ([]domain.Route, error)

	// Duel operations
	CreateDuel(ctx context.Context, duel *domain.DuelRun) error
	UpdateDuel(ctx context.Context, duel *domain.DuelRun) error
	GetDuel(ctx context.Context, duelID string) (*domain.DuelRun, error)
	ListDuelsByStatus(ctx context.Context, statuses ...domain.DuelStatus) ([]domain.DuelRun, error)

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	ListEvents(ctx context.Context, sessionID string, afterTs int64, limit int) ([]domain.Event, error)

	// Lifecycle
	Close() error
}
