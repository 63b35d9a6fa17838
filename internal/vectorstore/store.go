// Package vectorstore wraps the vector database behind a narrow interface:
// collection bootstrap, upsert, filtered similarity search, bounded scans
// and point deletion.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Metric is a vector similarity metric.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricEuclid Metric = "euclid"
	MetricDot    Metric = "dot"
)

// PayloadIndexKind is the type of a declared payload index.
type PayloadIndexKind string

const (
	IndexKeyword PayloadIndexKind = "keyword"
	IndexInteger PayloadIndexKind = "integer"
)

// PayloadIndex declares a payload field index for a collection.
type PayloadIndex struct {
	Field string
	Kind  PayloadIndexKind
}

// CollectionSpec describes a collection to bootstrap.
type CollectionSpec struct {
	Name       string
	VectorSize uint64
	Metric     Metric

	// Indexes are created after the collection; creation failures are
	// logged, not fatal, since the collection stays usable without them.
	Indexes []PayloadIndex
}

// Point is one stored item: numeric key, vector and payload.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload map[string]any
}

// Record is a point read back without its vector.
type Record struct {
	ID      uint64
	Payload map[string]any
}

// ScoredPoint is one similarity search hit.
type ScoredPoint struct {
	ID      uint64
	Score   float32
	Payload map[string]any
}

// Store is the vector database surface the pipeline depends on.
//
// Upsert and both delete operations are idempotent: re-upserting a point
// overwrites it, and deleting an absent point is not an error. Scroll
// returns pages in store-internal order; callers paginate with the returned
// offset and must treat any single page as a bounded snapshot.
type Store interface {
	// EnsureCollection creates the collection and its declared payload
	// indexes if they do not already exist. Safe to call repeatedly and
	// tolerant of the benign race where two bootstraps both create.
	EnsureCollection(ctx context.Context, spec CollectionSpec) error

	// Upsert inserts or overwrites points by key. Safe to retry.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to limit nearest points, optionally restricted to
	// points whose payload matches every filter entry exactly. When the
	// store rejects the structured filter, the adapter degrades to an
	// unfiltered search with an enlarged limit plus client-side filtering.
	Search(ctx context.Context, collection string, vector []float32, filter map[string]string, limit int) ([]ScoredPoint, error)

	// Scroll returns up to limit points after offset (nil starts from the
	// beginning) and the next-page offset, or nil when exhausted.
	Scroll(ctx context.Context, collection string, filter map[string]string, offset *uint64, limit int) ([]Record, *uint64, error)

	// Get fetches points by key. Absent keys are simply omitted.
	Get(ctx context.Context, collection string, ids []uint64) ([]Record, error)

	// DeleteByFilter removes all points whose payload matches the filter.
	DeleteByFilter(ctx context.Context, collection string, filter map[string]string) error

	// DeleteByIDs removes points by key.
	DeleteByIDs(ctx context.Context, collection string, ids []uint64) error

	// Close releases the store connection.
	Close() error
}
