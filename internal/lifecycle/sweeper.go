// Package lifecycle evicts documents whose last access falls outside the
// retention window, and collects orphaned chunks left behind by failed
// ingestions.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/identity"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Config holds sweeper settings.
type Config struct {
	ChunkCollection    string
	DocumentCollection string

	// Window is the retention window. A document is evicted when
	// now - lastAccessedAt exceeds it.
	Window time.Duration

	// Interval between background sweeps. Defaults to Window.
	Interval time.Duration

	// PageSize and MaxPages bound each scan.
	PageSize int
	MaxPages int

	// OrphanGrace protects chunks of in-flight ingestions: a chunk without
	// a metadata record is only collected once it is older than this.
	OrphanGrace time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Window == 0 {
		c.Window = 24 * time.Hour
	}
	if c.Interval == 0 {
		c.Interval = c.Window
	}
	if c.PageSize == 0 {
		c.PageSize = 100
	}
	if c.MaxPages == 0 {
		c.MaxPages = 100
	}
	if c.OrphanGrace == 0 {
		c.OrphanGrace = time.Hour
	}
}

// Report summarizes one sweep.
type Report struct {
	// Evicted counts fully removed documents.
	Evicted int `json:"evicted"`

	// EvictedIDs lists the removed documentIds.
	EvictedIDs []string `json:"evicted_ids,omitempty"`

	// FailedIDs lists documents whose eviction failed; they are retried on
	// the next sweep.
	FailedIDs []string `json:"failed_ids,omitempty"`

	// OrphanChunks counts chunks removed by the orphan pass.
	OrphanChunks int `json:"orphan_chunks"`
}

// Sweeper scans document metadata and evicts expired documents.
type Sweeper struct {
	store  vectorstore.Store
	config Config
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	now func() time.Time
}

// NewSweeper creates the lifecycle sweeper.
func NewSweeper(store vectorstore.Store, config Config, logger *zap.Logger) (*Sweeper, error) {
	config.ApplyDefaults()
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config.ChunkCollection == "" || config.DocumentCollection == "" {
		return nil, fmt.Errorf("collection names are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:  store,
		config: config,
		logger: logger.Named("lifecycle"),
		now:    time.Now,
	}, nil
}

// Start launches the background sweep loop. The first sweep runs
// immediately, then every Interval. Start is idempotent.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.loop(ctx, s.stopCh, s.doneCh)
	s.logger.Info("sweeper started",
		zap.Duration("window", s.config.Window),
		zap.Duration("interval", s.config.Interval))
}

// Stop halts the background loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	report, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
		return
	}
	if report.Evicted > 0 || len(report.FailedIDs) > 0 || report.OrphanChunks > 0 {
		s.logger.Info("sweep completed",
			zap.Int("evicted", report.Evicted),
			zap.Int("failed", len(report.FailedIDs)),
			zap.Int("orphan_chunks", report.OrphanChunks))
	}
}

// Sweep performs one full pass: evict expired documents, then collect
// orphaned chunks. Per-document failures are recorded and skipped so one
// bad record cannot wedge the whole sweep.
func (s *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	now := s.now().UTC()
	report := &Report{}
	live := make(map[string]struct{})
	scanComplete := false

	var offset *uint64
	for page := 0; page < s.config.MaxPages; page++ {
		records, next, err := s.store.Scroll(ctx, s.config.DocumentCollection, nil, offset, s.config.PageSize)
		if err != nil {
			return nil, ragerr.Wrap(ragerr.CodeStoreError, "scanning document metadata", err)
		}
		for _, rec := range records {
			meta, err := document.MetadataFromPayload(rec.Payload)
			if err != nil {
				s.logger.Warn("skipping malformed metadata record",
					zap.Uint64("point_id", rec.ID), zap.Error(err))
				// The record exists even if undecodable; its document must
				// not look orphaned to the chunk pass.
				if docID, ok := rec.Payload[document.FieldDocumentID].(string); ok && docID != "" {
					live[docID] = struct{}{}
				}
				continue
			}
			if now.Sub(meta.LastAccessedAt) <= s.config.Window {
				live[meta.DocumentID] = struct{}{}
				continue
			}
			if err := s.evict(ctx, meta.DocumentID, rec.ID); err != nil {
				s.logger.Warn("eviction failed",
					zap.String("document_id", meta.DocumentID), zap.Error(err))
				report.FailedIDs = append(report.FailedIDs, meta.DocumentID)
				live[meta.DocumentID] = struct{}{}
				continue
			}
			report.Evicted++
			report.EvictedIDs = append(report.EvictedIDs, meta.DocumentID)
		}
		if next == nil {
			scanComplete = true
			break
		}
		offset = next
	}

	// A truncated metadata scan means live is only a partial view, and any
	// document beyond the cutoff would be misread as orphaned. Chunk
	// collection is deferred until a sweep sees the whole collection.
	if !scanComplete {
		s.logger.Warn("metadata scan truncated, skipping orphan pass",
			zap.Int("max_pages", s.config.MaxPages),
			zap.Int("page_size", s.config.PageSize))
		return report, nil
	}

	orphans, err := s.sweepOrphans(ctx, now, live)
	if err != nil {
		s.logger.Warn("orphan pass failed", zap.Error(err))
	}
	report.OrphanChunks = orphans

	return report, nil
}

// evict removes chunks first, then the metadata record: a metadata record
// pointing at missing chunks is harmless, its chunks without metadata would
// otherwise wait for the orphan pass.
func (s *Sweeper) evict(ctx context.Context, documentID string, metaPointID uint64) error {
	filter := map[string]string{document.FieldDocumentID: documentID}
	if err := s.store.DeleteByFilter(ctx, s.config.ChunkCollection, filter); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if err := s.store.DeleteByIDs(ctx, s.config.DocumentCollection, []uint64{metaPointID}); err != nil {
		return fmt.Errorf("deleting metadata: %w", err)
	}
	s.logger.Info("evicted document", zap.String("document_id", documentID))
	return nil
}

// sweepOrphans removes chunks whose document has no metadata record. Only
// chunks ingested more than OrphanGrace ago are touched, so an ingestion
// that has persisted chunks but not yet committed metadata is left alone.
func (s *Sweeper) sweepOrphans(ctx context.Context, now time.Time, live map[string]struct{}) (int, error) {
	cutoff := now.Add(-s.config.OrphanGrace).Unix()
	orphaned := make(map[string]int)

	var offset *uint64
	for page := 0; page < s.config.MaxPages; page++ {
		records, next, err := s.store.Scroll(ctx, s.config.ChunkCollection, nil, offset, s.config.PageSize)
		if err != nil {
			return 0, fmt.Errorf("scanning chunks: %w", err)
		}
		for _, rec := range records {
			docID, ok := rec.Payload[document.FieldDocumentID].(string)
			if !ok || docID == "" {
				continue
			}
			if _, alive := live[docID]; alive {
				continue
			}
			ingestedAt, ok := rec.Payload[document.FieldIngestedAt].(int64)
			if !ok || ingestedAt > cutoff {
				continue
			}
			orphaned[docID]++
		}
		if next == nil {
			break
		}
		offset = next
	}

	removed := 0
	for docID, count := range orphaned {
		// Re-check against the metadata point before destroying anything:
		// the scan snapshot may predate a metadata commit that raced with it.
		if s.metadataExists(ctx, docID) {
			continue
		}
		filter := map[string]string{document.FieldDocumentID: docID}
		if err := s.store.DeleteByFilter(ctx, s.config.ChunkCollection, filter); err != nil {
			s.logger.Warn("failed to remove orphaned chunks",
				zap.String("document_id", docID), zap.Error(err))
			continue
		}
		removed += count
		s.logger.Info("removed orphaned chunks",
			zap.String("document_id", docID), zap.Int("chunks", count))
	}
	return removed, nil
}

// metadataExists reports whether a metadata record for documentID is present.
// Lookup failures count as present so the chunks are kept; the next sweep
// retries. The numeric key is a truncated hash, so a hit only counts when the
// payload's document_id matches.
func (s *Sweeper) metadataExists(ctx context.Context, documentID string) bool {
	records, err := s.store.Get(ctx, s.config.DocumentCollection, []uint64{identity.MetadataID(documentID)})
	if err != nil {
		s.logger.Warn("metadata re-check failed, keeping chunks",
			zap.String("document_id", documentID), zap.Error(err))
		return true
	}
	for _, rec := range records {
		if docID, _ := rec.Payload[document.FieldDocumentID].(string); docID == documentID {
			return true
		}
	}
	return false
}
