package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/converselabs/contextd/internal/storage"
	"github.com/converselabs/contextd/pkg/types"
)

// UpsertEntity inserts or merges an entity row for the (session, type, value)
// triple in a single atomic statement.
func (s *Store) UpsertEntity(ctx context.Context, sessionID, entityType, value string, confidence float64, metadata map[string]string) (*types.EntityRecord, error) {
	if sessionID == "" || entityType == "" || value == "" {
		return nil, fmt.Errorf("%w: session ID, type, and value are required", storage.ErrInvalidInput)
	}

	var metadataJSON []byte
	if len(metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to marshal entity metadata: %w", err)
		}
	}

	now := time.Now().UTC()

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO entities (id, session_id, type, value, confidence, mention_count, first_mentioned_at, last_mentioned_at, metadata)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $6, $7)
		ON CONFLICT (session_id, type, value) DO UPDATE SET
			mention_count = entities.mention_count + 1,
			last_mentioned_at = excluded.last_mentioned_at
		RETURNING id, session_id, type, value, confidence, mention_count, first_mentioned_at, last_mentioned_at, metadata`,
		uuid.NewString(), sessionID, entityType, value, confidence, now, metadataJSON)

	record, err := scanEntity(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to upsert entity: %w", err)
	}

	return record, nil
}

// ListEntities returns a session's entities ordered by mention count, then
// recency. An empty entityType returns all types.
func (s *Store) ListEntities(ctx context.Context, sessionID, entityType string) ([]types.EntityRecord, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session ID is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT id, session_id, type, value, confidence, mention_count, first_mentioned_at, last_mentioned_at, metadata
		FROM entities
		WHERE session_id = $1`
	args := []interface{}{sessionID}
	if entityType != "" {
		query += ` AND type = $2`
		args = append(args, entityType)
	}
	query += ` ORDER BY mention_count DESC, last_mentioned_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []types.EntityRecord
	for rows.Next() {
		record, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan entity row: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: entities rows error: %w", err)
	}

	return records, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner) (*types.EntityRecord, error) {
	var record types.EntityRecord
	var metadataJSON sql.NullString

	err := row.Scan(&record.ID, &record.SessionID, &record.Type, &record.Value,
		&record.Confidence, &record.MentionCount,
		&record.FirstMentionedAt, &record.LastMentionedAt, &metadataJSON)
	if err != nil {
		return nil, err
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &record.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal entity metadata: %w", err)
		}
	}

	return &record, nil
}
