package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/identity"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// FindExisting returns the documentId of a document with the same owner and
// original name, or "" when none exists. Owner scoping uses the indexed
// owner_key_hash filter; the name match happens client-side because exact
// string equality on an unindexed field is cheap at page granularity.
func (s *Service) FindExisting(ctx context.Context, ownerHash, originalName string) (string, error) {
	filter := map[string]string{document.FieldOwnerKeyHash: ownerHash}

	var offset *uint64
	for page := 0; page < s.config.MaxPages; page++ {
		records, next, err := s.store.Scroll(ctx, s.config.DocumentCollection, filter, offset, s.config.PageSize)
		if err != nil {
			return "", ragerr.Wrap(ragerr.CodeStoreError, "scanning for duplicates", err)
		}
		for _, rec := range records {
			meta, err := document.MetadataFromPayload(rec.Payload)
			if err != nil {
				s.logger.Warn("skipping malformed metadata record",
					zap.Uint64("point_id", rec.ID), zap.Error(err))
				continue
			}
			if meta.OriginalName == originalName {
				return meta.DocumentID, nil
			}
		}
		if next == nil {
			break
		}
		offset = next
	}
	return "", nil
}

// List returns all document metadata owned by the caller, newest upload
// first is not guaranteed; callers sort as needed.
func (s *Service) List(ctx context.Context, credential string) ([]document.Metadata, error) {
	if credential == "" {
		return nil, ragerr.New(ragerr.CodeAPIKeyMissing, "caller credential is required")
	}

	filter := map[string]string{document.FieldOwnerKeyHash: identity.OwnerKeyHash(credential)}

	var out []document.Metadata
	var offset *uint64
	for page := 0; page < s.config.MaxPages; page++ {
		records, next, err := s.store.Scroll(ctx, s.config.DocumentCollection, filter, offset, s.config.PageSize)
		if err != nil {
			return nil, ragerr.Wrap(ragerr.CodeStoreError, "listing documents", err)
		}
		for _, rec := range records {
			meta, err := document.MetadataFromPayload(rec.Payload)
			if err != nil {
				s.logger.Warn("skipping malformed metadata record",
					zap.Uint64("point_id", rec.ID), zap.Error(err))
				continue
			}
			out = append(out, meta)
		}
		if next == nil {
			break
		}
		offset = next
	}
	return out, nil
}

// Delete removes a document's chunks and its metadata record. The metadata
// lookup re-validates the stored document_id against the requested one: the
// numeric point id is a truncated hash, so a collision must not let one
// document's delete take out another's record.
func (s *Service) Delete(ctx context.Context, documentID string) error {
	if documentID == "" {
		return ragerr.New(ragerr.CodeNotFound, "document id is required")
	}

	metaID := identity.MetadataID(documentID)
	records, err := s.store.Get(ctx, s.config.DocumentCollection, []uint64{metaID})
	if err != nil {
		return ragerr.Wrap(ragerr.CodeStoreError, "looking up document metadata", err)
	}
	found := false
	for _, rec := range records {
		meta, err := document.MetadataFromPayload(rec.Payload)
		if err == nil && meta.DocumentID == documentID {
			found = true
			break
		}
	}
	if !found {
		return ragerr.New(ragerr.CodeNotFound, fmt.Sprintf("document %s not found", documentID))
	}

	chunkFilter := map[string]string{document.FieldDocumentID: documentID}
	if err := s.store.DeleteByFilter(ctx, s.config.ChunkCollection, chunkFilter); err != nil {
		return ragerr.Wrap(ragerr.CodeStoreError, "deleting document chunks", err)
	}
	if err := s.store.DeleteByIDs(ctx, s.config.DocumentCollection, []uint64{metaID}); err != nil {
		return ragerr.Wrap(ragerr.CodeStoreError, "deleting document metadata", err)
	}

	s.logger.Info("deleted document", zap.String("document_id", documentID))
	return nil
}
