// Ragd is a retrieval-augmented document service.
//
// It ingests PDF files and web pages, chunks and embeds their text into a
// Qdrant vector store, and answers questions against a single document by
// retrieving its most similar chunks and handing them to an OpenAI-compatible
// completion model. Documents that go unqueried past the retention window are
// evicted by a background sweeper.
//
// Usage:
//
//	# Start with defaults
//	ragd
//
//	# Load a config file, override via environment
//	RAGD_SERVER_PORT=9090 ragd -config /etc/ragd/config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/httpapi"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/lifecycle"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ragd %s (%s)\n", version, gitCommit)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("ragd: %v", err)
	}
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting ragd",
		zap.String("version", version),
		zap.String("qdrant", fmt.Sprintf("%s:%d", cfg.Qdrant.Host, cfg.Qdrant.Port)))

	store, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
		Host:    cfg.Qdrant.Host,
		Port:    cfg.Qdrant.Port,
		UseTLS:  cfg.Qdrant.UseTLS,
		Timeout: cfg.Qdrant.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("connecting to vector store: %w", err)
	}
	defer store.Close() //nolint:errcheck

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL:   cfg.Embeddings.BaseURL,
		Model:     cfg.Embeddings.Model,
		APIKey:    cfg.Embeddings.APIKey,
		BatchSize: cfg.Embeddings.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("creating embedding service: %w", err)
	}

	generator, err := retrieval.NewOpenAIGenerator(retrieval.GeneratorConfig{
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		APIKey:      cfg.Generation.APIKey,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("creating generation client: %w", err)
	}

	ch, err := chunker.New(cfg.Ingest.WindowSize, cfg.Ingest.Overlap)
	if err != nil {
		return fmt.Errorf("creating chunker: %w", err)
	}

	loader := extract.NewLoader(logger)

	ingestSvc, err := ingest.NewService(store, embedder, loader, ch, ingest.Config{
		ChunkCollection:    cfg.Qdrant.ChunkCollection,
		DocumentCollection: cfg.Qdrant.DocumentCollection,
		VectorSize:         cfg.Qdrant.VectorSize,
		BatchSize:          cfg.Embeddings.BatchSize,
		PageSize:           cfg.Retention.PageSize,
		MaxPages:           cfg.Retention.MaxPages,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating ingestion service: %w", err)
	}

	if err := ingestSvc.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrapping collections: %w", err)
	}

	retrievalSvc, err := retrieval.NewService(store, embedder, generator, retrieval.Config{
		ChunkCollection:    cfg.Qdrant.ChunkCollection,
		DocumentCollection: cfg.Qdrant.DocumentCollection,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating retrieval service: %w", err)
	}

	sweeper, err := lifecycle.NewSweeper(store, lifecycle.Config{
		ChunkCollection:    cfg.Qdrant.ChunkCollection,
		DocumentCollection: cfg.Qdrant.DocumentCollection,
		Window:             cfg.Retention.Window,
		Interval:           cfg.Retention.SweepInterval,
		PageSize:           cfg.Retention.PageSize,
		MaxPages:           cfg.Retention.MaxPages,
		OrphanGrace:        cfg.Retention.OrphanGrace,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating lifecycle sweeper: %w", err)
	}
	sweeper.Start(ctx)
	defer sweeper.Stop()

	server, err := httpapi.NewServer(ingestSvc, retrievalSvc, sweeper, logger, &httpapi.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		DevMode: cfg.Server.DevMode,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}

	logger.Info("ragd stopped")
	return nil
}
