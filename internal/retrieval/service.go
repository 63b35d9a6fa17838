// Package retrieval answers questions against a single ingested document:
// embed the query, search its chunks, assemble a context block and hand it
// to the generation model.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/identity"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// promptTemplate is the fixed generation prompt. Chunk texts are joined by
// blank lines into the context block.
const promptTemplate = `Use the following context to answer the question. If the context does not contain the answer, say so.

Context:
%s

Question: %s

Answer:`

// defaultTopK is the number of chunks retrieved per query.
const defaultTopK = 3

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces a completion for a prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds retrieval settings.
type Config struct {
	ChunkCollection    string
	DocumentCollection string
	TopK               int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopK == 0 {
		c.TopK = defaultTopK
	}
}

// Service is the retrieval orchestrator.
type Service struct {
	store     vectorstore.Store
	embedder  QueryEmbedder
	generator Generator
	config    Config
	logger    *zap.Logger

	now func() time.Time
}

// NewService creates the retrieval service.
func NewService(store vectorstore.Store, embedder QueryEmbedder, generator Generator, config Config, logger *zap.Logger) (*Service, error) {
	config.ApplyDefaults()
	if store == nil || embedder == nil || generator == nil {
		return nil, fmt.Errorf("store, embedder and generator are required")
	}
	if config.ChunkCollection == "" || config.DocumentCollection == "" {
		return nil, fmt.Errorf("collection names are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		embedder:  embedder,
		generator: generator,
		config:    config,
		logger:    logger.Named("retrieval"),
		now:       time.Now,
	}, nil
}

// Answer runs one retrieval-augmented query against a single document.
func (s *Service) Answer(ctx context.Context, query, documentID, credential string) (string, error) {
	if credential == "" {
		return "", ragerr.New(ragerr.CodeAPIKeyMissing, "caller credential is required")
	}
	if query == "" || documentID == "" {
		return "", ragerr.New(ragerr.CodeInvalidRequest, "query and document id are required")
	}

	// Access recording is best-effort: a broken clock must not block reads.
	s.recordAccess(ctx, documentID)

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return "", ragerr.Wrap(ragerr.CodeEmbeddingFailed, "embedding query", err)
	}

	filter := map[string]string{document.FieldDocumentID: documentID}
	results, err := s.store.Search(ctx, s.config.ChunkCollection, vector, filter, s.config.TopK)
	if err != nil {
		return "", ragerr.Wrap(ragerr.CodeStoreError, "searching chunks", err)
	}
	if len(results) == 0 {
		return "", ragerr.New(ragerr.CodeNoContextFound,
			fmt.Sprintf("no chunks found for document %s", documentID))
	}

	texts := make([]string, 0, len(results))
	for _, r := range results {
		text, ok := r.Payload[document.FieldText].(string)
		if !ok {
			s.logger.Warn("chunk without text payload",
				zap.Uint64("point_id", r.ID),
				zap.String("document_id", documentID))
			continue
		}
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return "", ragerr.New(ragerr.CodeNoContextFound,
			fmt.Sprintf("no readable chunks for document %s", documentID))
	}

	prompt := fmt.Sprintf(promptTemplate, strings.Join(texts, "\n\n"), query)
	answer, err := s.generator.Complete(ctx, prompt)
	if err != nil {
		return "", ragerr.Wrap(ragerr.CodeGenerationFailed, "generating answer", err)
	}

	s.logger.Debug("answered query",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(texts)))
	return answer, nil
}

// recordAccess rewrites the metadata record's last_accessed_at. The read and
// write are not atomic; concurrent queries race and the last writer wins,
// which is acceptable for eviction freshness.
func (s *Service) recordAccess(ctx context.Context, documentID string) {
	metaID := identity.MetadataID(documentID)
	records, err := s.store.Get(ctx, s.config.DocumentCollection, []uint64{metaID})
	if err != nil {
		s.logger.Warn("failed to read metadata for access update",
			zap.String("document_id", documentID), zap.Error(err))
		return
	}

	for _, rec := range records {
		storedID, _ := rec.Payload[document.FieldDocumentID].(string)
		if storedID != documentID {
			continue
		}
		rec.Payload[document.FieldLastAccessedAt] = s.now().Unix()
		point := vectorstore.Point{ID: rec.ID, Vector: []float32{0}, Payload: rec.Payload}
		if err := s.store.Upsert(ctx, s.config.DocumentCollection, []vectorstore.Point{point}); err != nil {
			s.logger.Warn("failed to record document access",
				zap.String("document_id", documentID), zap.Error(err))
		}
		return
	}
	s.logger.Debug("access update skipped, no metadata record",
		zap.String("document_id", documentID))
}
