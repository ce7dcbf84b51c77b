package hub

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/glanceassist/glance/pkg/domain"
)

// Repository persists session-end snapshots for the Learning Hub. The core
// never depends on persistence succeeding; callers treat failures as
// log-and-forget.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveSnapshot(ctx context.Context, session domain.ChatSession) error {
	selection, err := json.Marshal(session.Selection)
	if err != nil {
		return fmt.Errorf("encoding selection: %w", err)
	}
	messages, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("encoding messages: %w", err)
	}
	markers, err := json.Marshal(session.Markers)
	if err != nil {
		return fmt.Errorf("encoding markers: %w", err)
	}

	const query = `
		INSERT INTO session_snapshots (session_id, selection, messages, markers, expanded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id)
		DO UPDATE SET
			messages = EXCLUDED.messages,
			markers = EXCLUDED.markers,
			expanded = EXCLUDED.expanded,
			snapshotted = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query,
		session.ID, selection, messages, markers, session.Expanded, session.CreatedAt,
	); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	return nil
}

// GetSnapshot reads one persisted snapshot back, mainly for Learning Hub
// style consumers.
func (r *Repository) GetSnapshot(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	const query = `
		SELECT session_id, selection, messages, markers, expanded, created_at
		FROM session_snapshots
		WHERE session_id = $1
	`

	var (
		session                      domain.ChatSession
		selection, messages, markers []byte
	)
	err := r.db.QueryRowContext(ctx, query, sessionID).
		Scan(&session.ID, &selection, &messages, &markers, &session.Expanded, &session.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("fetching snapshot: %w", err)
	}

	if err := json.Unmarshal(selection, &session.Selection); err != nil {
		return nil, fmt.Errorf("decoding selection: %w", err)
	}
	if err := json.Unmarshal(messages, &session.Messages); err != nil {
		return nil, fmt.Errorf("decoding messages: %w", err)
	}
	if len(markers) > 0 {
		if err := json.Unmarshal(markers, &session.Markers); err != nil {
			return nil, fmt.Errorf("decoding markers: %w", err)
		}
	}

	return &session, nil
}
