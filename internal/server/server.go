// Package server provides the HTTP surface and lifecycle management for the
// contextd service.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/converselabs/contextd/internal/config"
	"github.com/converselabs/contextd/internal/engine"
	"github.com/converselabs/contextd/internal/retrieval"
	"github.com/converselabs/contextd/internal/storage"
)

// NewRouter assembles the full HTTP handler: routed API endpoints behind
// auth, the health endpoint and websocket outside it, all wrapped in rate
// limiting and security headers.
func NewRouter(cfg *config.Config, handlers *Handlers, hub *Hub) http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/sessions", handlers.CreateSession)
	apiMux.HandleFunc("GET /api/sessions", handlers.ListSessions)
	apiMux.HandleFunc("GET /api/sessions/{id}", handlers.GetSession)
	apiMux.HandleFunc("DELETE /api/sessions/{id}", handlers.DeleteSession)
	apiMux.HandleFunc("POST /api/sessions/{id}/messages", handlers.IngestMessage)
	apiMux.HandleFunc("GET /api/sessions/{id}/messages", handlers.ListMessages)
	apiMux.HandleFunc("GET /api/sessions/{id}/entities", handlers.ListEntities)
	apiMux.HandleFunc("GET /api/sessions/{id}/context", handlers.ListContext)
	apiMux.HandleFunc("POST /api/sessions/{id}/search", handlers.Search)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handlers.Health)
	mux.Handle("/api/", RequireAuth(apiMux, cfg))
	mux.Handle("/ws", hub)

	handler := RateLimitMiddleware(mux, NewRateLimiter(10.0, 20))
	return securityHeadersMiddleware(handler)
}

// Start initializes and starts the HTTP server. Returns the actual address
// being listened on (useful for testing with port 0) and the hub for wiring
// extraction event broadcasts. The server shuts down when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, store storage.Store, eng *engine.Engine, retriever *retrieval.Retriever) (string, *Hub, error) {
	hub := NewHub([]string{fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)})
	go hub.Run()

	handlers := NewHandlers(cfg, store, eng, retriever)
	handler := NewRouter(cfg, handlers, hub)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		hub.Stop()
		return "", nil, fmt.Errorf("server: failed to listen on %s: %w", addr, err)
	}

	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
		hub.Stop()
	}()

	return actualAddr, hub, nil
}
