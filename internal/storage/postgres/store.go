// Package postgres implements the storage interfaces on PostgreSQL via
// lib/pq. When the pgvector extension is installed, message embeddings are
// additionally stored in a vector column and semantic candidate search runs
// inside the database instead of in process.
package postgres

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/converselabs/contextd/internal/storage"
	"github.com/converselabs/contextd/pkg/types"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	db                *sql.DB
	pgvectorAvailable bool
}

// Compile-time assertion.
var _ storage.Store = (*Store)(nil)

// NewStore connects to PostgreSQL, applies the schema, and probes for the
// pgvector extension. The connection string is a standard lib/pq DSN.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to create schema: %w", err)
	}

	store := &Store{db: db}

	// pgvector is optional: without it embeddings still round-trip through
	// the bytea column and similarity is computed in process.
	if _, err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		log.Printf("postgres: pgvector extension unavailable, falling back to in-process similarity: %v", err)
	}

	var available bool
	if err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`).Scan(&available); err == nil && available {
		if _, err := db.Exec(MigrationPgvector); err != nil {
			log.Printf("postgres: failed to add vector column: %v", err)
		} else {
			store.pgvectorAvailable = true
		}
	}

	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for components that need direct access.
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
		`INSERT INTO sessions (id, name, created_at, message_count) VALUES ($1, $2, $3, 0)`,
		session.ID, session.Name, session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create session: %w", err)
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
		`SELECT id, name, created_at, message_count FROM sessions WHERE id = $1`, id).
		Scan(&session.ID, &session.Name, &session.CreatedAt, &session.MessageCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to get session: %w", err)
	}

	return &session, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]types.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, message_count FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []types.Session
	for rows.Next() {
		var session types.Session
		if err := rows.Scan(&session.ID, &session.Name, &session.CreatedAt, &session.MessageCount); err != nil {
			return nil, fmt.Errorf("postgres: scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: sessions rows error: %w", err)
	}

	return sessions, nil
}

// DeleteSession removes a session; dependent rows cascade.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: session ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// AddMessage appends a message and bumps the session's message count inside
// one transaction.
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
		return nil, fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`UPDATE sessions SET message_count = message_count + 1 WHERE id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to bump message count: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return nil, storage.ErrNotFound
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		message.ID, message.SessionID, message.Role, message.Content, message.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("postgres: failed to commit message: %w", err)
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
		WHERE m.session_id = $1
		ORDER BY m.created_at DESC, m.id DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []types.Message
	for rows.Next() {
		var message types.Message
		var blob []byte
		var dimension sql.NullInt64

		if err := rows.Scan(&message.ID, &message.SessionID, &message.Role,
			&message.Content, &message.CreatedAt, &blob, &dimension); err != nil {
			return nil, fmt.Errorf("postgres: scan message row: %w", err)
		}

		if len(blob) > 0 && dimension.Valid {
			vector, err := decodeVector(blob, int(dimension.Int64))
			if err != nil {
				vector = nil
			}
			message.Embedding = vector
		}

		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: messages rows error: %w", err)
	}

	return messages, nil
}

// StoreEmbedding stores (or replaces) the embedding vector for a message in
// the bytea column, and mirrors it into the pgvector column when available.
func (s *Store) StoreEmbedding(ctx context.Context, messageID string, vector []float64) error {
	if messageID == "" {
		return fmt.Errorf("%w: message ID is required", storage.ErrInvalidInput)
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_embeddings (message_id, embedding, dimension, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (message_id) DO UPDATE SET
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = NOW()`,
		messageID, encodeVector(vector), len(vector))
	if err != nil {
		return fmt.Errorf("postgres: failed to store embedding: %w", err)
	}

	if s.pgvectorAvailable {
		// pgvector works in float32.
		f32 := make([]float32, len(vector))
		for i, v := range vector {
			f32[i] = float32(v)
		}
		_, err = s.db.ExecContext(ctx,
			`UPDATE message_embeddings SET embedding_vec = $2 WHERE message_id = $1`,
			messageID, pgvector.NewVector(f32))
		if err != nil {
			return fmt.Errorf("postgres: failed to store vector column: %w", err)
		}
	}

	return nil
}

// encodeVector encodes a float64 slice as little-endian bytes.
func encodeVector(vector []float64) []byte {
	buf := make([]byte, len(vector)*8)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeVector decodes a little-endian float64 blob.
func decodeVector(buf []byte, dimension int) ([]float64, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("postgres: invalid embedding dimension %d", dimension)
	}
	if len(buf) != dimension*8 {
		return nil, fmt.Errorf("postgres: embedding buffer size mismatch: expected %d bytes, got %d", dimension*8, len(buf))
	}

	vector := make([]float64, dimension)
	for i := range vector {
		vector[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vector, nil
}
