package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nexusengine/core/pkg/models"
)

// SQLiteStore is a durable Store backed by an embedded, single-writer
// SQLite database, per spec §6's tabular layout: sessions, events
// (indexed by session_id and turn_id), and schema_version.
type SQLiteStore struct {
	db *sql.DB
	// writeMu enforces the single-writer discipline spec §4.3 requires
	// for AppendEvent; SQLite itself serializes writers at the database
	// level, but an explicit mutex keeps the contract explicit and avoids
	// relying on driver-specific busy-retry behavior.
	writeMu sync.Mutex
}

// Open opens (creating if necessary) a SQLite-backed Store at dsn and
// applies any pending migrations.
func Open(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessions: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline; sqlite only really supports one writer anyway.

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessions: enable foreign keys: %w", err)
	}

	m, err := newMigrator(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := m.Up(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, metadata map[string]any) (models.Session, error) {
	session := models.Session{
		SessionID: uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return models.Session{}, fmt.Errorf("sessions: marshal metadata: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, created_at, metadata) VALUES (?, ?, ?)`,
		session.SessionID, session.CreatedAt.Format(time.RFC3339Nano), string(metaJSON))
	if err != nil {
		return models.Session{}, fmt.Errorf("sessions: insert session: %w", err)
	}
	return session, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	var createdAt, metaJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, metadata FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&createdAt, &metaJSON)
	if err == sql.ErrNoRows {
		return models.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("sessions: get session: %w", err)
	}

	return decodeSession(sessionID, createdAt, metaJSON)
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, created_at, metadata FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sessions: list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		var id, createdAt, metaJSON string
		if err := rows.Scan(&id, &createdAt, &metaJSON); err != nil {
			return nil, fmt.Errorf("sessions: scan session: %w", err)
		}
		session, err := decodeSession(id, createdAt, metaJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// created_at text is RFC3339Nano, whose width varies with the
	// fractional seconds, so the SQL ordering is not chronological;
	// order on the parsed times instead.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sessions: begin delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("sessions: delete events: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("sessions: delete session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("sessions: rows affected: %w", err)
	}
	if n == 0 {
		_ = tx.Rollback()
		return ErrSessionNotFound
	}
	return tx.Commit()
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, event models.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("sessions: marshal event: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, event_id, turn_id, event_type, timestamp, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		event.SessionID, event.EventID, event.TurnID, string(event.EventType),
		event.Timestamp.Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("sessions: append event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetEvents(ctx context.Context, sessionID string, eventType models.EventType) ([]models.SessionEvent, error) {
	query := `SELECT payload FROM events WHERE session_id = ?`
	args := []any{sessionID}
	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY auto_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sessions: query events: %w", err)
	}
	defer rows.Close()

	var out []models.SessionEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("sessions: scan event: %w", err)
		}
		var event models.SessionEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("sessions: unmarshal event: %w", err)
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodeSession(sessionID, createdAt, metaJSON string) (models.Session, error) {
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return models.Session{}, fmt.Errorf("sessions: parse created_at: %w", err)
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
		return models.Session{}, fmt.Errorf("sessions: unmarshal metadata: %w", err)
	}
	return models.Session{SessionID: sessionID, CreatedAt: t, Metadata: metadata}, nil
}

var _ Store = (*SQLiteStore)(nil)
var _ Store = (*MemoryStore)(nil)
