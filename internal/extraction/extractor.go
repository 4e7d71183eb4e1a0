// Package extraction turns raw conversational text into structured facts and
// entity candidates. It layers three stages: a pattern-based lexical matcher
// (always available), a remote entity analyzer (degrades to nothing), and a
// deriver that cross-references the two.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/converselabs/contextd/pkg/types"
)

// ErrInvalidInput is returned when required extraction inputs are missing.
// No partial work is performed in that case.
var ErrInvalidInput = errors.New("extraction: invalid input")

// TextAnalyzer is the remote entity-extraction capability. Implementations
// return an error on timeout, transport failure, or a malformed response;
// the Extractor absorbs that error and degrades rather than propagating it.
type TextAnalyzer interface {
	ExtractEntities(ctx context.Context, text string) ([]types.EntityCandidate, error)
}

// Extractor orchestrates the three extraction stages and guarantees a result
// object is always returned for valid input, possibly degraded. It is safe
// for concurrent use.
type Extractor struct {
	matcher  *Matcher
	analyzer TextAnalyzer
}

// NewExtractor creates an extractor. The analyzer may be nil, in which case
// every extraction runs in fallback mode with lexical facts only.
func NewExtractor(analyzer TextAnalyzer) *Extractor {
	return &Extractor{
		matcher:  NewMatcher(),
		analyzer: analyzer,
	}
}

// Extract runs the full pipeline over one message. The three stages are
// strictly sequential: lexical facts first, then the remote entity call,
// then fact derivation (which depends on the entity results).
//
// Remote-analysis failure is not an error: the result is tagged
// types.MethodFallback with an empty entity list and only lexical facts.
// The only error Extract returns is ErrInvalidInput.
func (e *Extractor) Extract(ctx context.Context, text, sessionID string) (result *types.ExtractionResult, err error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session ID is required", ErrInvalidInput)
	}

	// Last line of defense: if anything unexpected escapes the stages below,
	// degrade to lexical facts rather than letting message ingestion abort.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("extraction: recovered from panic, degrading to lexical facts: %v", r)
			result = e.fallbackResult(text, sessionID)
			err = nil
		}
	}()

	facts := e.matcher.Match(text)

	method := types.MethodFull
	var entities []types.EntityCandidate
	if e.analyzer == nil {
		method = types.MethodFallback
	} else {
		remote, analyzerErr := e.analyzer.ExtractEntities(ctx, text)
		if analyzerErr != nil {
			// Soft degradation: log for observability, never for control flow.
			log.Printf("extraction: entity analysis unavailable for session %s: %v", sessionID, analyzerErr)
			method = types.MethodFallback
		} else {
			entities = remote
		}
	}

	derived := DeriveFacts(text, entities)

	merged := dedupeFacts(append(facts, derived...))

	if entities == nil {
		entities = []types.EntityCandidate{}
	}

	return &types.ExtractionResult{
		Facts:       merged,
		Entities:    entities,
		SessionID:   sessionID,
		ExtractedAt: time.Now(),
		Method:      method,
	}, nil
}

// fallbackResult re-runs only the lexical matcher. Used when a stage panics.
func (e *Extractor) fallbackResult(text, sessionID string) *types.ExtractionResult {
	return &types.ExtractionResult{
		Facts:       dedupeFacts(e.matcher.Match(text)),
		Entities:    []types.EntityCandidate{},
		SessionID:   sessionID,
		ExtractedAt: time.Now(),
		Method:      types.MethodFallback,
	}
}

// dedupeFacts deduplicates by key with last-write-wins semantics: a later
// fact with the same key replaces an earlier one in place, so source order
// decides the winner while output order stays stable.
func dedupeFacts(facts []types.Fact) []types.Fact {
	deduped := make([]types.Fact, 0, len(facts))
	index := make(map[string]int, len(facts))

	for _, fact := range facts {
		if at, seen := index[fact.Key]; seen {
			deduped[at] = fact
			continue
		}
		index[fact.Key] = len(deduped)
		deduped = append(deduped, fact)
	}

	return deduped
}
