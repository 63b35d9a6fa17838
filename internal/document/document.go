// Package document defines the stored document model and its point payload
// encoding. The payload is the authoritative identity of every point: the
// numeric store keys are truncated hashes and must be re-validated against
// the payload's document_id before acting on a lookup.
package document

import (
	"errors"
	"fmt"
	"time"
)

// Payload field names shared by the chunk and metadata collections.
const (
	FieldDocumentID     = "document_id"
	FieldChunkIndex     = "chunk_index"
	FieldText           = "text"
	FieldIngestedAt     = "ingested_at"
	FieldOwnerKeyHash   = "owner_key_hash"
	FieldOriginalName   = "original_name"
	FieldSourceType     = "source_type"
	FieldUploadedAt     = "uploaded_at"
	FieldLastAccessedAt = "last_accessed_at"
)

// ErrMalformedPayload indicates a payload missing required fields.
var ErrMalformedPayload = errors.New("malformed point payload")

// SourceType identifies how a document entered the system.
type SourceType string

const (
	SourcePDF SourceType = "pdf"
	SourceURL SourceType = "url"
)

// ParseSourceType validates a source type string.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourcePDF:
		return SourcePDF, nil
	case SourceURL:
		return SourceURL, nil
	default:
		return "", fmt.Errorf("unknown source type %q", s)
	}
}

// Metadata is the per-document record committed at the end of a successful
// ingestion. Committing it is the publication point: chunks without a
// metadata record are invisible to query paths.
type Metadata struct {
	DocumentID     string     `json:"document_id"`
	OwnerKeyHash   string     `json:"owner_key_hash"`
	OriginalName   string     `json:"original_name"`
	SourceType     SourceType `json:"source_type"`
	UploadedAt     time.Time  `json:"uploaded_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
}

// Payload encodes the metadata as a point payload. Timestamps are stored as
// unix seconds so the store can index them as integers.
func (m Metadata) Payload() map[string]any {
	return map[string]any{
		FieldDocumentID:     m.DocumentID,
		FieldOwnerKeyHash:   m.OwnerKeyHash,
		FieldOriginalName:   m.OriginalName,
		FieldSourceType:     string(m.SourceType),
		FieldUploadedAt:     m.UploadedAt.Unix(),
		FieldLastAccessedAt: m.LastAccessedAt.Unix(),
	}
}

// MetadataFromPayload decodes a metadata point payload.
func MetadataFromPayload(payload map[string]any) (Metadata, error) {
	docID, ok := payload[FieldDocumentID].(string)
	if !ok || docID == "" {
		return Metadata{}, fmt.Errorf("%w: missing %s", ErrMalformedPayload, FieldDocumentID)
	}
	owner, ok := payload[FieldOwnerKeyHash].(string)
	if !ok {
		return Metadata{}, fmt.Errorf("%w: missing %s", ErrMalformedPayload, FieldOwnerKeyHash)
	}
	name, _ := payload[FieldOriginalName].(string)
	sourceType, _ := payload[FieldSourceType].(string)

	uploadedAt, ok := payload[FieldUploadedAt].(int64)
	if !ok {
		return Metadata{}, fmt.Errorf("%w: missing %s", ErrMalformedPayload, FieldUploadedAt)
	}
	lastAccessedAt, ok := payload[FieldLastAccessedAt].(int64)
	if !ok {
		return Metadata{}, fmt.Errorf("%w: missing %s", ErrMalformedPayload, FieldLastAccessedAt)
	}

	return Metadata{
		DocumentID:     docID,
		OwnerKeyHash:   owner,
		OriginalName:   name,
		SourceType:     SourceType(sourceType),
		UploadedAt:     time.Unix(uploadedAt, 0).UTC(),
		LastAccessedAt: time.Unix(lastAccessedAt, 0).UTC(),
	}, nil
}

// ChunkPayload encodes one chunk as a point payload.
func ChunkPayload(documentID string, chunkIndex int, text string, ingestedAt time.Time) map[string]any {
	return map[string]any{
		FieldDocumentID: documentID,
		FieldChunkIndex: int64(chunkIndex),
		FieldText:       text,
		FieldIngestedAt: ingestedAt.Unix(),
	}
}
