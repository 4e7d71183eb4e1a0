package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converselabs/contextd/pkg/types"
)

func TestExtractEntities_Success(t *testing.T) {
	var gotReq analyzeRequest
	var gotAuth, gotRequestID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		confidence := 0.93
		resp := map[string]interface{}{
			"success": true,
			"entities": []map[string]interface{}{
				{"type": "PERSON", "text": "Ada", "confidence": confidence, "start": 0, "end": 3},
				{"type": "GPE", "text": "Lisbon"},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	analyzer := NewAnalyzer(AnalyzerConfig{BaseURL: server.URL, APIKey: "secret"})

	entities, err := analyzer.ExtractEntities(context.Background(), "Ada moved to Lisbon")
	require.NoError(t, err)
	require.Len(t, entities, 2)

	assert.Equal(t, types.EntityPerson, entities[0].Type)
	assert.Equal(t, "Ada", entities[0].Value)
	assert.InDelta(t, 0.93, entities[0].Confidence, 1e-9)

	// Missing confidence defaults to 0.8; GPE normalizes to place.
	assert.Equal(t, types.EntityPlace, entities[1].Type)
	assert.InDelta(t, 0.8, entities[1].Confidence, 1e-9)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.NotEmpty(t, gotRequestID, "every request must carry a correlation id")
	assert.Equal(t, "Ada moved to Lisbon", gotReq.Text)
	assert.True(t, gotReq.Options.IncludeConfidence)
	assert.NotEmpty(t, gotReq.EntityTypes)
}

func TestExtractEntities_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	analyzer := NewAnalyzer(AnalyzerConfig{BaseURL: server.URL, Timeout: 20 * time.Millisecond})

	_, err := analyzer.ExtractEntities(context.Background(), "slow service")
	require.Error(t, err)
}

func TestExtractEntities_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	analyzer := NewAnalyzer(AnalyzerConfig{BaseURL: server.URL})

	_, err := analyzer.ExtractEntities(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestExtractEntities_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	analyzer := NewAnalyzer(AnalyzerConfig{BaseURL: server.URL})

	_, err := analyzer.ExtractEntities(context.Background(), "text")
	require.Error(t, err)
}

func TestExtractEntities_RemoteReportsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false})
	}))
	defer server.Close()

	analyzer := NewAnalyzer(AnalyzerConfig{BaseURL: server.URL})

	_, err := analyzer.ExtractEntities(context.Background(), "text")
	require.Error(t, err)
}

func TestExtractEntities_SkipsEntitiesWithoutValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"entities": []map[string]interface{}{
				{"type": "PERSON"},
				{"type": "ORG", "value": "Initech"},
			},
		})
	}))
	defer server.Close()

	analyzer := NewAnalyzer(AnalyzerConfig{BaseURL: server.URL})

	entities, err := analyzer.ExtractEntities(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	// The "value" field is accepted when "text" is absent.
	assert.Equal(t, "Initech", entities[0].Value)
	assert.Equal(t, types.EntityOrganization, entities[0].Type)
}

func TestExtractEntities_CircuitBreakerOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	analyzer := NewAnalyzer(AnalyzerConfig{BaseURL: server.URL})

	// Default breaker trips after 3 consecutive failures.
	for i := 0; i < 3; i++ {
		_, err := analyzer.ExtractEntities(context.Background(), "text")
		require.Error(t, err)
		require.False(t, errors.Is(err, ErrCircuitOpen), "breaker should still be closed on attempt %d", i+1)
	}

	_, err := analyzer.ExtractEntities(context.Background(), "text")
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestNormalizeEntityType(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"GPE", types.EntityPlace},
		{"LOC", types.EntityPlace},
		{"ORG", types.EntityOrganization},
		{"PERSON", types.EntityPerson},
		{"WORK_OF_ART", types.EntityMedia},
		{"WIDGET", "widget"}, // unknown labels lower-case through
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeEntityType(tt.raw), "raw type %q", tt.raw)
	}
}
