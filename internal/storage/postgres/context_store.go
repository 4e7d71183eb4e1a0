package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/converselabs/contextd/internal/storage"
	"github.com/converselabs/contextd/pkg/types"
)

// AddContext stores one extracted fact scoped to a session.
func (s *Store) AddContext(ctx context.Context, entry *types.ContextEntry) (*types.ContextEntry, error) {
	if entry == nil {
		return nil, storage.ErrInvalidInput
	}
	if entry.SessionID == "" || entry.Key == "" {
		return nil, fmt.Errorf("%w: session ID and key are required", storage.ErrInvalidInput)
	}
	if entry.Type == "" {
		entry.Type = "fact"
	}

	stored := *entry
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now().UTC()

	var sourceMessageID interface{}
	if stored.SourceMessageID != "" {
		sourceMessageID = stored.SourceMessageID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO context_entries (id, session_id, type, key, value, confidence, source_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		stored.ID, stored.SessionID, stored.Type, stored.Key, stored.Value,
		stored.Confidence, sourceMessageID, stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to add context entry: %w", err)
	}

	return &stored, nil
}

// ListContext returns a session's context entries newest first. An empty
// entryType returns all types.
func (s *Store) ListContext(ctx context.Context, sessionID, entryType string) ([]types.ContextEntry, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session ID is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT id, session_id, type, key, value, confidence, source_message_id, created_at
		FROM context_entries
		WHERE session_id = $1`
	args := []interface{}{sessionID}
	if entryType != "" {
		query += ` AND type = $2`
		args = append(args, entryType)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list context entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []types.ContextEntry
	for rows.Next() {
		var entry types.ContextEntry
		var sourceMessageID sql.NullString

		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Type, &entry.Key,
			&entry.Value, &entry.Confidence, &sourceMessageID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan context row: %w", err)
		}
		if sourceMessageID.Valid {
			entry.SourceMessageID = sourceMessageID.String
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: context rows error: %w", err)
	}

	return entries, nil
}
