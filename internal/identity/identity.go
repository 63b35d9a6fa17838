// Package identity derives document and point identifiers.
//
// Documents get a random UUID as their authoritative identity. The vector
// store requires numeric point keys, so point and metadata keys are derived
// by hashing and truncating to 32 bits. Truncation means numeric keys are
// not guaranteed unique; the string document ID is always carried in the
// point payload and lookups must validate against it before acting on a
// numeric-key hit.
package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"
)

// NewDocumentID returns a new globally-unique document identifier.
func NewDocumentID() string {
	return uuid.NewString()
}

// PointID derives the deterministic numeric key for one chunk.
// Same (documentID, chunkIndex) always yields the same key, which makes
// re-ingestion an idempotent overwrite.
func PointID(documentID string, chunkIndex int) uint64 {
	return truncatedHash(documentID + ":" + strconv.Itoa(chunkIndex))
}

// MetadataID derives the deterministic numeric key for a document's
// metadata record.
func MetadataID(documentID string) uint64 {
	return truncatedHash(documentID + ":meta")
}

// OwnerKeyHash returns a one-way hex hash of the caller credential, used to
// scope listing and dedup without storing the credential itself.
func OwnerKeyHash(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// truncatedHash hashes s and keeps the first 32 bits, the ID width the
// store supports for numeric point keys.
func truncatedHash(s string) uint64 {
	sum := sha256.Sum256([]byte(s))
	return uint64(binary.BigEndian.Uint32(sum[:4]))
}
