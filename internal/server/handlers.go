package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/converselabs/contextd/internal/config"
	"github.com/converselabs/contextd/internal/engine"
	"github.com/converselabs/contextd/internal/retrieval"
	"github.com/converselabs/contextd/internal/storage"
	"github.com/converselabs/contextd/pkg/types"
)

// Handlers serves the REST API over the ingestion engine, the retriever, and
// the store.
type Handlers struct {
	cfg       *config.Config
	store     storage.Store
	engine    *engine.Engine
	retriever *retrieval.Retriever
}

// NewHandlers builds the API handler set.
func NewHandlers(cfg *config.Config, store storage.Store, eng *engine.Engine, retriever *retrieval.Retriever) *Handlers {
	return &Handlers{cfg: cfg, store: store, engine: eng, retriever: retriever}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("server: failed to encode response: %v", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps storage/extraction errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("server: internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// CreateSession handles POST /api/sessions.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	session, err := h.store.CreateSession(r.Context(), req.Name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// ListSessions handles GET /api/sessions.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if sessions == nil {
		sessions = []types.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// GetSession handles GET /api/sessions/{id}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// DeleteSession handles DELETE /api/sessions/{id}.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IngestMessage handles POST /api/sessions/{id}/messages: stores the message
// and runs the extraction pipeline over it.
func (h *Handlers) IngestMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	message, result, err := h.engine.Ingest(r.Context(), r.PathValue("id"), req.Role, req.Content)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":    message,
		"extraction": result,
	})
}

// ListMessages handles GET /api/sessions/{id}/messages.
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.store.ListMessages(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if messages == nil {
		messages = []types.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// ListEntities handles GET /api/sessions/{id}/entities?type=place.
func (h *Handlers) ListEntities(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListEntities(r.Context(), r.PathValue("id"), r.URL.Query().Get("type"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if records == nil {
		records = []types.EntityRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// ListContext handles GET /api/sessions/{id}/context?type=fact.
func (h *Handlers) ListContext(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListContext(r.Context(), r.PathValue("id"), r.URL.Query().Get("type"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if entries == nil {
		entries = []types.ContextEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Search handles POST /api/sessions/{id}/search. An embedding outage surfaces
// as 502 rather than an empty result set, so remote failures are never
// mistaken for "no matches".
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query         string   `json:"query"`
		Limit         int      `json:"limit"`
		MinSimilarity *float64 `json:"min_similarity"`
		IncludeRecent *int     `json:"include_recent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	opts := retrieval.SearchOptions{
		Limit:         h.cfg.Retrieval.DefaultLimit,
		MinSimilarity: h.cfg.Retrieval.MinSimilarity,
		IncludeRecent: h.cfg.Retrieval.IncludeRecent,
	}
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	if req.MinSimilarity != nil {
		opts.MinSimilarity = *req.MinSimilarity
	}
	if req.IncludeRecent != nil {
		opts.IncludeRecent = *req.IncludeRecent
	}

	results, err := h.retriever.Search(r.Context(), r.PathValue("id"), req.Query, opts)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("server: search failed: %v", err)
		writeError(w, http.StatusBadGateway, "search unavailable")
		return
	}
	if results == nil {
		results = []types.ScoredMessage{}
	}
	writeJSON(w, http.StatusOK, results)
}

// Health handles GET /api/health. No auth required.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
