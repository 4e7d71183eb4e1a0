// Package types defines the shared domain model for contextd:
// sessions, messages, extracted facts, entities, and retrieval results.
package types

import "time"

// Extraction methods recorded on an ExtractionResult.
const (
	// MethodFull indicates the remote analysis step succeeded and the result
	// contains both lexical facts and remotely extracted entities.
	MethodFull = "full"

	// MethodFallback indicates the remote analysis step failed and the result
	// was degraded to lexical facts only.
	MethodFallback = "fallback"
)

// Entity type vocabulary. Remote analyzers use their own labels (ORG, GPE, …);
// the nlp package normalizes those into this set. Unknown labels pass through
// lower-cased, so this list is not exhaustive.
const (
	EntityPerson       = "person"
	EntityOrganization = "organization"
	EntityPlace        = "place"
	EntityDate         = "date"
	EntityTime         = "time"
	EntityProduct      = "product"
	EntityEvent        = "event"
	EntityFood         = "food"
	EntityMedia        = "media"
)

// Retrieval reasons recorded on a ScoredMessage.
const (
	ReasonRecent   = "recent"
	ReasonSemantic = "semantic"
)

// Fact is a key/value assertion extracted from conversational text.
// Keys are free-form (typically a category prefix plus a subject) and are
// unique within a single extraction batch, not globally.
type Fact struct {
	Key             string  `json:"key"`
	Value           string  `json:"value"`
	Confidence      float64 `json:"confidence"`
	SourceMessageID string  `json:"source_message_id,omitempty"`
}

// EntityCandidate is a transient entity produced by one extraction call.
// Only the entity store turns a candidate into a durable EntityRecord.
type EntityCandidate struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start,omitempty"`
	End        int     `json:"end,omitempty"`
}

// EntityRecord is a durable entity row with merge bookkeeping.
// Identity is the (SessionID, Type, Value) triple, case-sensitive.
type EntityRecord struct {
	ID               string            `json:"id"`
	SessionID        string            `json:"session_id"`
	Type             string            `json:"type"`
	Value            string            `json:"value"`
	Confidence       float64           `json:"confidence"`
	MentionCount     int               `json:"mention_count"`
	FirstMentionedAt time.Time         `json:"first_mentioned_at"`
	LastMentionedAt  time.Time         `json:"last_mentioned_at"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// ExtractionResult is the merged output of one extraction pass over a message.
type ExtractionResult struct {
	Facts       []Fact            `json:"facts"`
	Entities    []EntityCandidate `json:"entities"`
	SessionID   string            `json:"session_id"`
	ExtractedAt time.Time         `json:"extracted_at"`

	// Method is MethodFull or MethodFallback. Fallback signals that the
	// remote analysis step failed and only lexical facts are present.
	Method string `json:"method"`
}

// Session groups messages belonging to one conversation.
type Session struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

// Message is a single conversational turn. Embedding is nil until the
// enrichment step has stored a vector for it.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Embedding []float64 `json:"embedding,omitempty"`
}

// ContextEntry is a persisted fact scoped to a session.
type ContextEntry struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Type            string    `json:"type"`
	Key             string    `json:"key"`
	Value           string    `json:"value"`
	Confidence      float64   `json:"confidence"`
	SourceMessageID string    `json:"source_message_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ScoredMessage is one entry in a retrieval result. A message appears at
// most once per result; the recency path wins the dedup tie.
type ScoredMessage struct {
	MessageID  string  `json:"message_id"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	Reason     string  `json:"reason"`
}
