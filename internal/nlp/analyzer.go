// Package nlp provides HTTP clients for the remote text-analysis and
// embedding capabilities. Both clients are constructed once at process start
// with injected endpoint, credential, and timeout configuration, and both
// wrap their calls in a circuit breaker.
package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/converselabs/contextd/pkg/types"
)

// requestedEntityTypes is the fixed allow-list sent with every extraction
// request. The remote service may still answer with labels outside this
// list; those pass through normalizeEntityType lower-cased.
var requestedEntityTypes = []string{
	"PERSON", "ORG", "GPE", "LOC", "DATE", "TIME",
	"PRODUCT", "EVENT", "FOOD", "WORK_OF_ART",
}

// typeVocabulary maps the analyzer's raw labels onto the entity type
// vocabulary in pkg/types.
var typeVocabulary = map[string]string{
	"PERSON":       types.EntityPerson,
	"PER":          types.EntityPerson,
	"ORG":          types.EntityOrganization,
	"ORGANIZATION": types.EntityOrganization,
	"GPE":          types.EntityPlace,
	"LOC":          types.EntityPlace,
	"LOCATION":     types.EntityPlace,
	"FAC":          types.EntityPlace,
	"DATE":         types.EntityDate,
	"TIME":         types.EntityTime,
	"PRODUCT":      types.EntityProduct,
	"EVENT":        types.EntityEvent,
	"FOOD":         types.EntityFood,
	"WORK_OF_ART":  types.EntityMedia,
	"MEDIA":        types.EntityMedia,
}

// defaultEntityConfidence is assumed when the remote payload omits a score.
const defaultEntityConfidence = 0.8

// AnalyzerConfig holds analyzer client configuration.
type AnalyzerConfig struct {
	// BaseURL is the base URL of the text-analysis service.
	BaseURL string

	// APIKey is the shared secret sent with every request.
	APIKey string

	// Timeout bounds each extraction call (default: 5s).
	Timeout time.Duration
}

// Analyzer calls a remote text-analysis service to extract named entities.
type Analyzer struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *CircuitBreaker
	timeout time.Duration
}

// analyzeRequest is the wire format for an extraction request.
type analyzeRequest struct {
	Text        string         `json:"text"`
	EntityTypes []string       `json:"entity_types"`
	Options     analyzeOptions `json:"options"`
}

type analyzeOptions struct {
	IncludeConfidence bool `json:"include_confidence"`
}

// analyzeResponse is the expected response shape. Confidence is a pointer so
// a missing score can be told apart from an explicit zero.
type analyzeResponse struct {
	Success  bool `json:"success"`
	Entities []struct {
		Type       string   `json:"type"`
		Text       string   `json:"text"`
		Value      string   `json:"value"`
		Confidence *float64 `json:"confidence"`
		Start      int      `json:"start"`
		End        int      `json:"end"`
	} `json:"entities"`
}

// NewAnalyzer creates an analyzer client. A zero Timeout defaults to 5s.
func NewAnalyzer(config AnalyzerConfig) *Analyzer {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}

	return &Analyzer{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		client:  &http.Client{Timeout: config.Timeout},
		breaker: NewCircuitBreaker("entity-analyzer"),
		timeout: config.Timeout,
	}
}

// ExtractEntities sends text to the analysis service and returns normalized
// entity candidates. Every request carries a fresh correlation id for
// traceability. Timeouts, transport errors, and malformed responses all
// surface as errors; the extraction coordinator treats them as soft
// degradation rather than propagating them further.
func (a *Analyzer) ExtractEntities(ctx context.Context, text string) ([]types.EntityCandidate, error) {
	result, err := a.breaker.Execute(ctx, func() (interface{}, error) {
		return a.extractEntities(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]types.EntityCandidate), nil
}

func (a *Analyzer) extractEntities(ctx context.Context, text string) ([]types.EntityCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	body, err := json.Marshal(analyzeRequest{
		Text:        text,
		EntityTypes: requestedEntityTypes,
		Options:     analyzeOptions{IncludeConfidence: true},
	})
	if err != nil {
		return nil, fmt.Errorf("nlp: failed to marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/entities", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("nlp: failed to create analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nlp: analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("nlp: analyzer returned status %d: %s", resp.StatusCode, string(snippet))
	}

	var respData analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("nlp: failed to decode analyzer response: %w", err)
	}
	if !respData.Success {
		return nil, fmt.Errorf("nlp: analyzer reported failure")
	}

	candidates := make([]types.EntityCandidate, 0, len(respData.Entities))
	for _, raw := range respData.Entities {
		value := raw.Text
		if value == "" {
			value = raw.Value
		}
		if value == "" {
			continue
		}

		confidence := defaultEntityConfidence
		if raw.Confidence != nil {
			confidence = *raw.Confidence
		}

		candidates = append(candidates, types.EntityCandidate{
			Type:       normalizeEntityType(raw.Type),
			Value:      value,
			Confidence: confidence,
			Start:      raw.Start,
			End:        raw.End,
		})
	}

	return candidates, nil
}

// normalizeEntityType maps a raw analyzer label onto the internal vocabulary.
// Unknown labels pass through lower-cased so callers never see raw casing.
func normalizeEntityType(raw string) string {
	if mapped, ok := typeVocabulary[strings.ToUpper(raw)]; ok {
		return mapped
	}
	return strings.ToLower(raw)
}

// Compile-time assertion that Analyzer satisfies EntityExtractor.
var _ EntityExtractor = (*Analyzer)(nil)
