// Package engine coordinates message ingestion: extraction, persistence of
// the extracted facts and entities, and embedding generation.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/converselabs/contextd/internal/storage"
	"github.com/converselabs/contextd/pkg/types"
)

// Extractor runs the extraction pipeline over one message.
type Extractor interface {
	Extract(ctx context.Context, text, sessionID string) (*types.ExtractionResult, error)
}

// Embedder generates embedding vectors for stored messages.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Broadcaster receives extraction events for live subscribers. Optional.
type Broadcaster interface {
	Broadcast(message interface{})
}

// ExtractionEvent is broadcast after each processed message.
type ExtractionEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	MessageID string    `json:"message_id"`
	Method    string    `json:"method"`
	Facts     int       `json:"facts"`
	Entities  int       `json:"entities"`
	Timestamp time.Time `json:"timestamp"`
}

// Engine wires the extraction pipeline to storage. One instance is
// constructed at process start and shared; it holds no per-call state.
type Engine struct {
	store     storage.Store
	extractor Extractor
	embedder  Embedder
	hub       Broadcaster
}

// NewEngine builds an engine. The embedder may be nil, in which case messages
// are ingested without embeddings and only reachable via the recent path.
func NewEngine(store storage.Store, extractor Extractor, embedder Embedder) *Engine {
	return &Engine{store: store, extractor: extractor, embedder: embedder}
}

// SetBroadcaster attaches a hub for extraction events. Call before serving.
func (e *Engine) SetBroadcaster(hub Broadcaster) {
	e.hub = hub
}

// Ingest stores a message and runs extraction over it. The message write is
// the only hard failure; everything after it is best-effort.
func (e *Engine) Ingest(ctx context.Context, sessionID, role, content string) (*types.Message, *types.ExtractionResult, error) {
	message, err := e.store.AddMessage(ctx, sessionID, role, content)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: failed to store message: %w", err)
	}

	result, err := e.ProcessMessage(ctx, sessionID, message.ID, content)
	if err != nil {
		return nil, nil, err
	}

	return message, result, nil
}

// ProcessMessage runs extraction for a stored message and persists what came
// out. Per-item storage failures are logged and skipped; a failure persisting
// one fact or entity never aborts the rest of the batch. The embedding is
// also best-effort here: it only has to be loud at search time.
func (e *Engine) ProcessMessage(ctx context.Context, sessionID, messageID, text string) (*types.ExtractionResult, error) {
	result, err := e.extractor.Extract(ctx, text, sessionID)
	if err != nil {
		return nil, fmt.Errorf("engine: extraction rejected input: %w", err)
	}

	for _, fact := range result.Facts {
		entry := &types.ContextEntry{
			SessionID:       sessionID,
			Type:            "fact",
			Key:             fact.Key,
			Value:           fact.Value,
			Confidence:      fact.Confidence,
			SourceMessageID: messageID,
		}
		if _, err := e.store.AddContext(ctx, entry); err != nil {
			log.Printf("engine: failed to store fact %q: %v", fact.Key, err)
		}
	}

	for _, candidate := range result.Entities {
		_, err := e.store.UpsertEntity(ctx, sessionID, candidate.Type, candidate.Value, candidate.Confidence, nil)
		if err != nil {
			log.Printf("engine: failed to upsert entity %s/%q: %v", candidate.Type, candidate.Value, err)
		}
	}

	if e.embedder != nil {
		if vector, err := e.embedder.Embed(ctx, text); err != nil {
			log.Printf("engine: failed to embed message %s: %v", messageID, err)
		} else if err := e.store.StoreEmbedding(ctx, messageID, vector); err != nil {
			log.Printf("engine: failed to store embedding for message %s: %v", messageID, err)
		}
	}

	if e.hub != nil {
		e.hub.Broadcast(ExtractionEvent{
			Type:      "extraction",
			SessionID: sessionID,
			MessageID: messageID,
			Method:    result.Method,
			Facts:     len(result.Facts),
			Entities:  len(result.Entities),
			Timestamp: result.ExtractedAt,
		})
	}

	return result, nil
}
