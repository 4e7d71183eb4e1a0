// Command contextd runs the conversational context service: message
// ingestion with fact/entity extraction, and recency-plus-similarity search.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/converselabs/contextd/internal/config"
	"github.com/converselabs/contextd/internal/engine"
	"github.com/converselabs/contextd/internal/extraction"
	"github.com/converselabs/contextd/internal/nlp"
	"github.com/converselabs/contextd/internal/retrieval"
	"github.com/converselabs/contextd/internal/server"
	"github.com/converselabs/contextd/internal/storage"
	"github.com/converselabs/contextd/internal/storage/postgres"
	"github.com/converselabs/contextd/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONTEXTD_CONFIG"), "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("contextd: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("contextd: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("contextd: failed to close store: %v", err)
		}
	}()

	var analyzer extraction.TextAnalyzer
	if cfg.NLP.AnalyzerURL != "" {
		analyzer = nlp.NewAnalyzer(nlp.AnalyzerConfig{
			BaseURL: cfg.NLP.AnalyzerURL,
			APIKey:  cfg.NLP.AnalyzerAPIKey,
			Timeout: cfg.NLP.AnalyzerTimeout,
		})
	} else {
		log.Println("contextd: no analyzer configured, extraction runs lexical-only")
	}

	var embedder nlp.Embedder
	if cfg.NLP.EmbedderURL != "" {
		embedder = nlp.NewEmbeddingClient(nlp.EmbedderConfig{
			BaseURL: cfg.NLP.EmbedderURL,
			APIKey:  cfg.NLP.EmbedderAPIKey,
			Timeout: cfg.NLP.EmbedderTimeout,
		})
	} else {
		log.Println("contextd: no embedder configured, semantic search disabled")
	}

	eng := engine.NewEngine(store, extraction.NewExtractor(analyzer), embedder)
	retriever := retrieval.NewRetriever(store, embedder)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr, hub, err := server.Start(ctx, cfg, store, eng, retriever)
	if err != nil {
		log.Fatalf("contextd: %v", err)
	}
	eng.SetBroadcaster(hub)

	log.Printf("contextd: listening on %s (storage: %s)", addr, cfg.Storage.Engine)

	<-ctx.Done()
	log.Println("contextd: shutting down")
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.NewStore(cfg.Storage.PostgresDSN)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, err
		}
		return sqlite.NewStore(filepath.Join(cfg.Storage.DataPath, "contextd.db"))
	}
}
