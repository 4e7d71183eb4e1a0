// Package storage provides composable storage interfaces for contextd.
//
// The layer is split into small, focused interfaces that backends implement
// independently; Store composes them for callers that need the whole surface.
package storage

import (
	"context"
	"errors"

	"github.com/converselabs/contextd/pkg/types"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrInvalidInput is returned when a required argument is missing or malformed.
var ErrInvalidInput = errors.New("storage: invalid input")

// SessionStore manages conversation sessions.
type SessionStore interface {
	// CreateSession creates a new session with a generated id.
	CreateSession(ctx context.Context, name string) (*types.Session, error)

	// GetSession retrieves a session by id. Returns ErrNotFound if absent.
	GetSession(ctx context.Context, id string) (*types.Session, error)

	// ListSessions returns all sessions, newest first.
	ListSessions(ctx context.Context) ([]types.Session, error)

	// DeleteSession removes a session and everything hanging off it.
	// Returns ErrNotFound if the session doesn't exist.
	DeleteSession(ctx context.Context, id string) error
}

// MessageStore manages conversational messages and their embeddings.
type MessageStore interface {
	// AddMessage appends a message to a session and bumps the session's
	// message count. Returns ErrNotFound if the session doesn't exist.
	AddMessage(ctx context.Context, sessionID, role, content string) (*types.Message, error)

	// ListMessages returns a session's messages newest first. Messages that
	// have a stored embedding carry it; the rest have a nil Embedding.
	ListMessages(ctx context.Context, sessionID string) ([]types.Message, error)

	// StoreEmbedding stores (or replaces) the embedding vector for a message.
	StoreEmbedding(ctx context.Context, messageID string, vector []float64) error
}

// EntityStore persists entities with merge semantics. Identity is the
// case-sensitive (session, type, value) triple.
type EntityStore interface {
	// UpsertEntity inserts a new entity row with mention_count 1, or — when
	// the triple already exists — increments mention_count and advances
	// last_mentioned_at, leaving first_mentioned_at, confidence, and stored
	// metadata untouched. The lookup and write are a single atomic
	// statement, so concurrent upserts for one triple cannot both insert.
	UpsertEntity(ctx context.Context, sessionID, entityType, value string, confidence float64, metadata map[string]string) (*types.EntityRecord, error)

	// ListEntities returns a session's entities ordered by mention_count
	// descending, then last_mentioned_at descending. An empty entityType
	// returns all types.
	ListEntities(ctx context.Context, sessionID, entityType string) ([]types.EntityRecord, error)
}

// ContextStore persists extracted facts scoped to a session.
type ContextStore interface {
	// AddContext stores one fact row and returns it with id and timestamp set.
	AddContext(ctx context.Context, entry *types.ContextEntry) (*types.ContextEntry, error)

	// ListContext returns a session's context entries newest first. An empty
	// entryType returns all types.
	ListContext(ctx context.Context, sessionID, entryType string) ([]types.ContextEntry, error)
}

// ErrSemanticUnavailable is returned by SemanticCandidates when the backend
// cannot run similarity search in-database (for example when the pgvector
// extension is missing). Callers should fall back to in-process scoring.
var ErrSemanticUnavailable = errors.New("storage: in-database semantic search unavailable")

// SemanticSearcher is an optional capability interface. Backends that can
// rank embeddings inside the database implement it; callers discover it with
// a type assertion and fall back to in-process scoring otherwise.
type SemanticSearcher interface {
	// SemanticCandidates returns messages in the session whose embeddings
	// have cosine similarity >= threshold with the query vector, most
	// similar first, at most limit rows. Message ids in exclude are
	// skipped. Returns ErrSemanticUnavailable when the backend cannot
	// serve the query in-database.
	SemanticCandidates(ctx context.Context, sessionID string, query []float64, exclude []string, threshold float64, limit int) ([]types.ScoredMessage, error)
}

// Store is the full storage surface implemented by each backend.
type Store interface {
	SessionStore
	MessageStore
	EntityStore
	ContextStore

	// Close releases any resources held by the store.
	Close() error
}
