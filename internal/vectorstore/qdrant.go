package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// fallbackLimitMultiplier enlarges the limit for the degraded unfiltered
// search so the client-side filter still sees enough candidates.
const fallbackLimitMultiplier = 10

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334, not the 6333 REST port).
	Port int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the maximum number of retry attempts for transient
	// failures. Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff duration; doubles per retry.
	// Default: 1 second.
	RetryBackoff time.Duration

	// Timeout bounds each store call. Default: 15 seconds.
	Timeout time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// ValidateCollectionName validates a collection name against naming rules.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts and temporary unavailability, false for
// invalid arguments, not found and permission failures.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// isFilterRejected reports whether a search error means the store could not
// execute the structured filter, which triggers the client-side fallback.
func isFilterRejected(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == grpccodes.InvalidArgument
}

func isAlreadyExists(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == grpccodes.AlreadyExists
}

func isNotFound(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == grpccodes.NotFound
}

// QdrantStore is the Store implementation backed by Qdrant's native gRPC
// client. gRPC transport avoids the REST layer's payload size limit on
// large document batches.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	// collections caches bootstrap checks so EnsureCollection is cheap on
	// the hot path.
	collections sync.Map
}

// NewQdrantStore connects to Qdrant and verifies the connection with a
// health check before returning a ready-to-use store.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client: client,
		config: config,
		logger: logger.Named("vectorstore"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff on
// transient errors.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func(ctx context.Context) error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		err := operation(callCtx)
		cancel()
		if err == nil {
			return nil
		}

		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// EnsureCollection creates the collection if missing, then creates its
// declared payload indexes. Index creation failures are logged and
// swallowed; the collection stays usable without them.
func (s *QdrantStore) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	if err := ValidateCollectionName(spec.Name); err != nil {
		return err
	}
	if _, ok := s.collections.Load(spec.Name); ok {
		return nil
	}

	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func(ctx context.Context) error {
		info, err := s.client.GetCollectionInfo(ctx, spec.Name)
		if err != nil {
			if isNotFound(err) {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", spec.Name, err)
	}

	if !exists {
		err := s.retryOperation(ctx, "create_collection", func(ctx context.Context) error {
			err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: spec.Name,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     spec.VectorSize,
					Distance: toQdrantDistance(spec.Metric),
				}),
			})
			// Two bootstraps may race; both succeeding is benign.
			if err != nil && isAlreadyExists(err) {
				return nil
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", spec.Name, err)
		}
		s.logger.Info("created collection",
			zap.String("collection", spec.Name),
			zap.Uint64("vector_size", spec.VectorSize))
	}

	s.createIndexes(ctx, spec)
	s.collections.Store(spec.Name, true)
	return nil
}

func (s *QdrantStore) createIndexes(ctx context.Context, spec CollectionSpec) {
	for _, idx := range spec.Indexes {
		fieldType := qdrant.FieldType_FieldTypeKeyword
		if idx.Kind == IndexInteger {
			fieldType = qdrant.FieldType_FieldTypeInteger
		}
		err := s.retryOperation(ctx, "create_field_index", func(ctx context.Context) error {
			_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: spec.Name,
				FieldName:      idx.Field,
				FieldType:      &fieldType,
			})
			return err
		})
		if err != nil {
			s.logger.Warn("payload index creation failed, continuing without it",
				zap.String("collection", spec.Name),
				zap.String("field", idx.Field),
				zap.Error(err))
		}
	}
}

func toQdrantDistance(m Metric) qdrant.Distance {
	switch m {
	case MetricEuclid:
		return qdrant.Distance_Euclid
	case MetricDot:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

// Upsert inserts or overwrites points by numeric key.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: toQdrantPayload(p.Payload),
		}
	}

	err := s.retryOperation(ctx, "upsert", func(ctx context.Context) error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         qdrantPoints,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("upserting %d points to %s: %w", len(points), collection, err)
	}
	return nil
}

// Search returns up to limit nearest points by similarity. When the store
// rejects the structured filter, it degrades to an unfiltered search with
// an enlarged limit and filters client-side on the payload fields.
func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, filter map[string]string, limit int) ([]ScoredPoint, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	results, err := s.query(ctx, collection, vector, buildFilter(filter), limit)
	if err == nil {
		return results, nil
	}
	if len(filter) == 0 || !isFilterRejected(err) {
		return nil, fmt.Errorf("searching collection %s: %w", collection, err)
	}

	// Degraded path: the result set is equivalent to a server-side filtered
	// search as long as the true match count fits the enlarged window.
	s.logger.Warn("structured filter rejected, falling back to client-side filtering",
		zap.String("collection", collection),
		zap.Error(err))

	oversampled, err := s.query(ctx, collection, vector, nil, limit*fallbackLimitMultiplier)
	if err != nil {
		return nil, fmt.Errorf("fallback search in collection %s: %w", collection, err)
	}
	return filterClientSide(oversampled, filter, limit), nil
}

func (s *QdrantStore) query(ctx context.Context, collection string, vector []float32, filter *qdrant.Filter, limit int) ([]ScoredPoint, error) {
	var scored []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "search", func(ctx context.Context) error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if err != nil {
			return err
		}
		scored = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]ScoredPoint, len(scored))
	for i, point := range scored {
		results[i] = ScoredPoint{
			ID:      point.GetId().GetNum(),
			Score:   point.GetScore(),
			Payload: fromQdrantPayload(point.GetPayload()),
		}
	}
	return results, nil
}

// Scroll returns up to limit points after offset in store-internal order,
// plus the next-page offset (nil when the collection is exhausted).
func (s *QdrantStore) Scroll(ctx context.Context, collection string, filter map[string]string, offset *uint64, limit int) ([]Record, *uint64, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		return nil, nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	var qdrantOffset *qdrant.PointId
	if offset != nil {
		qdrantOffset = qdrant.NewIDNum(*offset)
	}

	var points []*qdrant.RetrievedPoint
	var nextOffset *qdrant.PointId
	err := s.retryOperation(ctx, "scroll", func(ctx context.Context) error {
		res, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Filter:         buildFilter(filter),
			Offset:         qdrantOffset,
			Limit:          qdrant.PtrOf(uint32(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		nextOffset = next
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scrolling collection %s: %w", collection, err)
	}

	records := make([]Record, len(points))
	for i, p := range points {
		records[i] = Record{
			ID:      p.GetId().GetNum(),
			Payload: fromQdrantPayload(p.GetPayload()),
		}
	}

	var next *uint64
	if nextOffset != nil {
		next = qdrant.PtrOf(nextOffset.GetNum())
	}
	return records, next, nil
}

// Get fetches points by numeric key; absent keys are omitted.
func (s *QdrantStore) Get(ctx context.Context, collection string, ids []uint64) ([]Record, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDNum(id)
	}

	var points []*qdrant.RetrievedPoint
	err := s.retryOperation(ctx, "get", func(ctx context.Context) error {
		res, err := s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: collection,
			Ids:            pointIDs,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("getting points from %s: %w", collection, err)
	}

	records := make([]Record, len(points))
	for i, p := range points {
		records[i] = Record{
			ID:      p.GetId().GetNum(),
			Payload: fromQdrantPayload(p.GetPayload()),
		}
	}
	return records, nil
}

// DeleteByFilter removes all points matching the filter. Deleting with a
// filter that matches nothing is not an error.
func (s *QdrantStore) DeleteByFilter(ctx context.Context, collection string, filter map[string]string) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(filter) == 0 {
		return fmt.Errorf("refusing to delete with empty filter from %s", collection)
	}

	err := s.retryOperation(ctx, "delete_by_filter", func(ctx context.Context) error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: buildFilter(filter),
				},
			},
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting by filter from %s: %w", collection, err)
	}
	return nil
}

// DeleteByIDs removes points by numeric key. Absent keys are ignored.
func (s *QdrantStore) DeleteByIDs(ctx context.Context, collection string, ids []uint64) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDNum(id)
	}

	err := s.retryOperation(ctx, "delete_by_ids", func(ctx context.Context) error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{Ids: pointIDs},
				},
			},
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting %d points from %s: %w", len(ids), collection, err)
	}
	return nil
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
