// Package sessions implements the durable, ordered session event log (C3)
// and the Session façade (C5) that derives an LLM-ready message view from
// that event history.
package sessions

import (
	"context"
	"errors"

	"github.com/nexusengine/core/pkg/models"
)

// ErrSessionNotFound is returned by Get/Delete for an unknown session id.
var ErrSessionNotFound = errors.New("sessions: session not found")

// Store is the durable, append-only event log keyed by session.
// Implementations serialize AppendEvent per spec §4.3's single-writer
// discipline; reads may proceed concurrently with writes.
type Store interface {
	CreateSession(ctx context.Context, metadata map[string]any) (models.Session, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, error)
	// ListSessions returns sessions newest-first.
	ListSessions(ctx context.Context) ([]models.Session, error)
	// DeleteSession removes a session and all its events atomically.
	DeleteSession(ctx context.Context, sessionID string) error

	AppendEvent(ctx context.Context, event models.SessionEvent) error
	// GetEvents returns a session's events in append order, optionally
	// filtered to one event type.
	GetEvents(ctx context.Context, sessionID string, eventType models.EventType) ([]models.SessionEvent, error)

	Close() error
}
