package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	pctx "github.com/nexusengine/core/internal/context"
	"github.com/nexusengine/core/internal/tokencount"
	"github.com/nexusengine/core/pkg/models"
)

// Session is the façade over the event Store and the context Packer: it
// derives an LLM-ready message view from event history and exposes a
// token-budgeted context window to the orchestrator.
type Session struct {
	store   Store
	packer  *pctx.Packer
	session models.Session
	turnID  string
}

// Start creates a new session and returns its façade.
func Start(ctx context.Context, store Store, packer *pctx.Packer, metadata map[string]any) (*Session, error) {
	session, err := store.CreateSession(ctx, metadata)
	if err != nil {
		return nil, fmt.Errorf("sessions: start: %w", err)
	}
	return &Session{store: store, packer: packer, session: session}, nil
}

// Resume reattaches to an existing session, failing if unknown.
func Resume(ctx context.Context, store Store, packer *pctx.Packer, sessionID string) (*Session, error) {
	session, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sessions: resume: %w", err)
	}
	return &Session{store: store, packer: packer, session: session}, nil
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.session.SessionID }

// NewTurn starts a new turn and returns its id. Events appended after
// this call until the next NewTurn belong to this turn.
func (s *Session) NewTurn() string {
	s.turnID = uuid.NewString()
	return s.turnID
}

// AppendEvent stamps event with the session and current turn id (if
// unset), the append-time UTC timestamp, and appends it to the store.
func (s *Session) AppendEvent(ctx context.Context, event models.SessionEvent) error {
	event.SessionID = s.session.SessionID
	if event.TurnID == "" {
		event.TurnID = s.turnID
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	event.Timestamp = time.Now().UTC()
	return s.store.AppendEvent(ctx, event)
}

// GetMessages derives the full LLM-view message history from this
// session's event log.
func (s *Session) GetMessages(ctx context.Context) ([]models.Message, error) {
	events, err := s.store.GetEvents(ctx, s.session.SessionID, "")
	if err != nil {
		return nil, fmt.Errorf("sessions: get messages: %w", err)
	}
	return deriveMessages(events), nil
}

// GetContextWindow derives the message history and packs it to fit
// limits, always keeping system-role messages and the most recent
// suffix of ordinary messages.
func (s *Session) GetContextWindow(ctx context.Context, tools []tokencount.ToolSchema, systemPrompt string, limits pctx.Limits) ([]models.Message, pctx.Report, error) {
	messages, err := s.GetMessages(ctx)
	if err != nil {
		return nil, pctx.Report{}, err
	}
	kept, report := s.packer.Pack(messages, tools, systemPrompt, limits)
	return kept, report, nil
}
