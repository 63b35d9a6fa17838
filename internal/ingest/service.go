// Package ingest turns raw document sources into persisted, queryable
// chunks plus one metadata record, and manages document listing, deletion
// and duplicate detection.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/identity"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Embedder generates embeddings for chunk batches.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Loader extracts plain text from document sources.
type Loader interface {
	LoadPDF(ctx context.Context, path string) (string, error)
	LoadURL(ctx context.Context, url string) (string, error)
}

// Config holds ingestion settings.
type Config struct {
	ChunkCollection    string
	DocumentCollection string
	VectorSize         uint64

	// BatchSize is the embed-and-persist unit. Each batch is atomic:
	// a batch failure aborts ingestion but earlier batches stay committed.
	BatchSize int

	// PageSize and MaxPages bound metadata scans for dedup and listing.
	PageSize int
	MaxPages int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 5
	}
	if c.PageSize == 0 {
		c.PageSize = 100
	}
	if c.MaxPages == 0 {
		c.MaxPages = 100
	}
}

// Request describes one ingestion.
type Request struct {
	// Source is a local file path (pdf) or a URL (url).
	Source string

	// Type is the source type.
	Type document.SourceType

	// Credential is the caller's API key. Never persisted; only its hash.
	Credential string

	// OriginalName is the human-readable name. Falls back to Source.
	OriginalName string

	// RemoveSource deletes the source file once ingestion finishes, for
	// staged copies of uploaded bytes.
	RemoveSource bool
}

// Result is the outcome of a successful ingestion.
type Result struct {
	DocumentID string
	ChunkCount int

	// Duplicate is true when an equivalent document already existed and
	// DocumentID refers to it.
	Duplicate bool
}

// Service is the ingestion orchestrator.
type Service struct {
	store    vectorstore.Store
	embedder Embedder
	loader   Loader
	chunker  *chunker.Chunker
	config   Config
	logger   *zap.Logger

	now func() time.Time
}

// NewService creates the ingestion service.
func NewService(store vectorstore.Store, embedder Embedder, loader Loader, ch *chunker.Chunker, config Config, logger *zap.Logger) (*Service, error) {
	config.ApplyDefaults()
	if store == nil || embedder == nil || loader == nil || ch == nil {
		return nil, fmt.Errorf("store, embedder, loader and chunker are required")
	}
	if config.ChunkCollection == "" || config.DocumentCollection == "" {
		return nil, fmt.Errorf("collection names are required")
	}
	if config.VectorSize == 0 {
		return nil, fmt.Errorf("vector size is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		embedder: embedder,
		loader:   loader,
		chunker:  ch,
		config:   config,
		logger:   logger.Named("ingest"),
		now:      time.Now,
	}, nil
}

// Bootstrap ensures both collections and their payload indexes exist.
// Idempotent; also invoked lazily on the ingestion path so a recreated
// store heals without a restart.
func (s *Service) Bootstrap(ctx context.Context) error {
	chunkSpec := vectorstore.CollectionSpec{
		Name:       s.config.ChunkCollection,
		VectorSize: s.config.VectorSize,
		Metric:     vectorstore.MetricCosine,
		Indexes: []vectorstore.PayloadIndex{
			{Field: document.FieldDocumentID, Kind: vectorstore.IndexKeyword},
		},
	}
	if err := s.store.EnsureCollection(ctx, chunkSpec); err != nil {
		return ragerr.Wrap(ragerr.CodeStoreError, "bootstrapping chunk collection", err)
	}

	docSpec := vectorstore.CollectionSpec{
		Name: s.config.DocumentCollection,
		// Metadata points carry a placeholder vector; the record lives in
		// the payload.
		VectorSize: 1,
		Metric:     vectorstore.MetricCosine,
		Indexes: []vectorstore.PayloadIndex{
			{Field: document.FieldDocumentID, Kind: vectorstore.IndexKeyword},
			{Field: document.FieldOwnerKeyHash, Kind: vectorstore.IndexKeyword},
			{Field: document.FieldLastAccessedAt, Kind: vectorstore.IndexInteger},
		},
	}
	if err := s.store.EnsureCollection(ctx, docSpec); err != nil {
		return ragerr.Wrap(ragerr.CodeStoreError, "bootstrapping document collection", err)
	}
	return nil
}

// Ingest runs the full pipeline: validate, dedup, extract, chunk, embed and
// persist batch-by-batch, then commit the metadata record.
//
// Chunks from batches committed before a failure are not rolled back; the
// metadata commit at the end is the publication point, so a partial chunk
// set under an unpublished documentId stays invisible until the orphan
// sweep collects it.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	if req.RemoveSource {
		defer func() {
			if err := os.Remove(req.Source); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("failed to remove staged source",
					zap.String("path", req.Source),
					zap.Error(err))
			}
		}()
	}

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	originalName := req.OriginalName
	if originalName == "" {
		originalName = req.Source
	}
	ownerHash := identity.OwnerKeyHash(req.Credential)

	if err := s.Bootstrap(ctx); err != nil {
		return nil, err
	}

	if existing, err := s.FindExisting(ctx, ownerHash, originalName); err != nil {
		s.logger.Warn("duplicate check failed, continuing with ingestion", zap.Error(err))
	} else if existing != "" {
		s.logger.Info("duplicate document, returning existing",
			zap.String("document_id", existing),
			zap.String("original_name", originalName))
		return &Result{DocumentID: existing, Duplicate: true}, nil
	}

	text, err := s.extractText(ctx, req)
	if err != nil {
		return nil, err
	}

	chunks := s.chunker.Split(strings.TrimSpace(text))
	if len(chunks) == 0 {
		return nil, ragerr.New(ragerr.CodeEmptyContent, "document produced no chunkable text")
	}

	docID := identity.NewDocumentID()
	now := s.now().UTC()

	if err := s.persistChunks(ctx, docID, chunks, now); err != nil {
		return nil, err
	}

	meta := document.Metadata{
		DocumentID:     docID,
		OwnerKeyHash:   ownerHash,
		OriginalName:   originalName,
		SourceType:     req.Type,
		UploadedAt:     now,
		LastAccessedAt: now,
	}
	metaPoint := vectorstore.Point{
		ID:      identity.MetadataID(docID),
		Vector:  []float32{0},
		Payload: meta.Payload(),
	}
	if err := s.store.Upsert(ctx, s.config.DocumentCollection, []vectorstore.Point{metaPoint}); err != nil {
		return nil, ragerr.Wrap(ragerr.CodeStoreError, "committing document metadata", err)
	}

	s.logger.Info("ingested document",
		zap.String("document_id", docID),
		zap.String("source_type", string(req.Type)),
		zap.Int("chunks", len(chunks)))

	return &Result{DocumentID: docID, ChunkCount: len(chunks)}, nil
}

func validateRequest(req Request) error {
	if req.Credential == "" {
		return ragerr.New(ragerr.CodeAPIKeyMissing, "caller credential is required")
	}

	switch req.Type {
	case document.SourcePDF:
		if _, err := os.Stat(req.Source); err != nil {
			return ragerr.Wrap(ragerr.CodeFileNotFound, fmt.Sprintf("source file %s", req.Source), err)
		}
	case document.SourceURL:
		parsed, err := url.Parse(req.Source)
		if err != nil {
			return ragerr.Wrap(ragerr.CodeInvalidURL, fmt.Sprintf("parsing %s", req.Source), err)
		}
		if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return ragerr.New(ragerr.CodeInvalidURL, fmt.Sprintf("source %q is not an http(s) URL", req.Source))
		}
	default:
		return ragerr.New(ragerr.CodeUnsupportedType, fmt.Sprintf("source type %q is not supported", req.Type))
	}
	return nil
}

func (s *Service) extractText(ctx context.Context, req Request) (string, error) {
	var text string
	var err error
	switch req.Type {
	case document.SourcePDF:
		text, err = s.loader.LoadPDF(ctx, req.Source)
	case document.SourceURL:
		text, err = s.loader.LoadURL(ctx, req.Source)
	}
	if err != nil {
		if isFileNotFound(err) {
			return "", ragerr.Wrap(ragerr.CodeFileNotFound, fmt.Sprintf("source file %s", req.Source), err)
		}
		return "", ragerr.Wrap(ragerr.CodeExtractionFailed, fmt.Sprintf("extracting %s", req.Source), err)
	}
	return text, nil
}

func isFileNotFound(err error) bool {
	return err != nil && (os.IsNotExist(err) || errors.Is(err, extract.ErrFileNotFound))
}

// persistChunks embeds and upserts chunks batch by batch. Ordering across
// batches is sequential to keep back-pressure simple against the embedding
// provider's rate limits.
func (s *Service) persistChunks(ctx context.Context, docID string, chunks []chunker.Chunk, now time.Time) error {
	for start := 0; start < len(chunks); start += s.config.BatchSize {
		end := start + s.config.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return ragerr.Wrap(ragerr.CodeEmbeddingFailed,
				fmt.Sprintf("embedding chunks %d-%d", start, end-1), err)
		}

		points := make([]vectorstore.Point, len(batch))
		for i, ch := range batch {
			points[i] = vectorstore.Point{
				ID:      identity.PointID(docID, ch.Index),
				Vector:  vectors[i],
				Payload: document.ChunkPayload(docID, ch.Index, ch.Text, now),
			}
		}
		if err := s.store.Upsert(ctx, s.config.ChunkCollection, points); err != nil {
			return ragerr.Wrap(ragerr.CodeStoreError,
				fmt.Sprintf("persisting chunks %d-%d", start, end-1), err)
		}
	}
	return nil
}
