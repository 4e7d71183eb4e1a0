// Package sqlite implements the storage interfaces on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/converselabs/contextd/internal/storage"
	"github.com/converselabs/contextd/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Compile-time assertion.
var _ storage.Store = (*Store)(nil)

// NewStore opens a SQLite database, configures WAL mode, and applies the
// schema. Use ":memory:" as the DSN for an in-memory database in tests.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite supports a single concurrent writer. One open connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load; WAL
	// mode lets readers proceed without blocking that writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s failed: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for components that need direct access
// (health checks, stats).
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateSession creates a new session with a generated id.
func (s *Store) CreateSession(ctx context.Context, name string) (*types.Session, error) {
	session := &types.Session{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, created_at, message_count) VALUES (?, ?, ?, 0)`,
		session.ID, session.Name, session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to create session: %w", err)
	}

	return session, nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: session ID is required", storage.ErrInvalidInput)
	}

	var session types.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, message_count FROM sessions WHERE id = ?`, id).
		Scan(&session.ID, &session.Name, &session.CreatedAt, &session.MessageCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to get session: %w", err)
	}

	return &session, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]types.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, message_count FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []types.Session
	for rows.Next() {
		var session types.Session
		if err := rows.Scan(&session.ID, &session.Name, &session.CreatedAt, &session.MessageCount); err != nil {
			return nil, fmt.Errorf("sqlite: scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: sessions rows error: %w", err)
	}

	return sessions, nil
}

// DeleteSession removes a session; messages, embeddings, entities, and
// context entries cascade via foreign keys.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: session ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// AddMessage appends a message and bumps the session's message count inside
// one transaction, keeping the count consistent with the rows.
func (s *Store) AddMessage(ctx context.Context, sessionID, role, content string) (*types.Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session ID is required", storage.ErrInvalidInput)
	}
	if content == "" {
		return nil, fmt.Errorf("%w: message content is required", storage.ErrInvalidInput)
	}
	if role == "" {
		role = "user"
	}

	message := &types.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`UPDATE sessions SET message_count = message_count + 1 WHERE id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to bump message count: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return nil, storage.ErrNotFound
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		message.ID, message.SessionID, message.Role, message.Content, message.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to commit message: %w", err)
	}

	return message, nil
}

// ListMessages returns a session's messages newest first, with stored
// embeddings attached.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session ID is required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.session_id, m.role, m.content, m.created_at, e.embedding, e.dimension
		FROM messages m
		LEFT JOIN message_embeddings e ON e.message_id = m.id
		WHERE m.session_id = ?
		ORDER BY m.created_at DESC, m.rowid DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []types.Message
	for rows.Next() {
		var message types.Message
		var blob []byte
		var dimension sql.NullInt64

		if err := rows.Scan(&message.ID, &message.SessionID, &message.Role,
			&message.Content, &message.CreatedAt, &blob, &dimension); err != nil {
			return nil, fmt.Errorf("sqlite: scan message row: %w", err)
		}

		if len(blob) > 0 && dimension.Valid {
			vector, err := deserializeVector(blob, int(dimension.Int64))
			if err != nil {
				// A corrupt embedding shouldn't hide the message itself.
				vector = nil
			}
			message.Embedding = vector
		}

		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: messages rows error: %w", err)
	}

	return messages, nil
}
