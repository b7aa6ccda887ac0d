// Package embedding persists allowance vectors in Redis hashes and serves
// KNN similarity search over the FT index built on top of them.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pravoline/allowdex/internal/db"
	"github.com/pravoline/allowdex/internal/domain"
)

// Hash field names for the embedding rows.
const (
	fieldAllowanceID = "allowance_id"
	fieldModel       = "model"
	fieldVector      = "vector"
	fieldCreatedAt   = "created_at"
)

// HNSW build parameters for the vector index.
const (
	hnswM           = 16
	hnswEFConstruct = 200
)

// store is the consumer interface for embedding rows (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo implements the embedding store repository. One row exists per
// allowance; Upsert replaces the row in place.
type Repo struct {
	store     store
	keyPrefix string
	metric    domain.Metric

	// dim is fixed by EnsureIndex; writes are rejected at any other width.
	dim int
}

// New creates an embedding repository for the given similarity metric.
func New(s store, keyPrefix string, metric domain.Metric) *Repo {
	return &Repo{store: s, keyPrefix: keyPrefix, metric: metric}
}

// EnsureIndex creates the vector index if it does not exist yet. dim fixes
// the vector column width; it must match the vectorizer's dimension.
func (r *Repo) EnsureIndex(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: vector index requires a positive dimension, got %d", domain.ErrValidation, dim)
	}

	r.dim = dim

	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.indexName(), err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     r.indexName(),
		Prefixes: []string{r.keyPrefix + "emb:"},
		Fields: []db.IndexField{
			{Name: fieldAllowanceID, Type: db.IndexFieldNumeric},
			{Name: fieldModel, Type: db.IndexFieldTag},
			{
				Name:              fieldVector,
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         dim,
				VectorDistance:    distanceMetric(r.metric),
				VectorM:           hnswM,
				VectorEFConstruct: hnswEFConstruct,
			},
		},
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", r.indexName(), err)
	}
	return nil
}

// Upsert writes the embedding row for rec.AllowanceID, replacing any
// previous vector.
func (r *Repo) Upsert(ctx context.Context, rec domain.EmbeddingRecord) error {
	if len(rec.Vector) == 0 {
		return fmt.Errorf("%w: embedding vector is empty", domain.ErrValidation)
	}
	if r.dim > 0 && len(rec.Vector) != r.dim {
		return domain.NewDimensionMismatch(rec.Model, r.dim, len(rec.Vector))
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	fields := map[string]string{
		fieldAllowanceID: strconv.FormatInt(rec.AllowanceID, 10),
		fieldModel:       rec.Model,
		fieldVector:      db.EncodeVector(rec.Vector),
		fieldCreatedAt:   createdAt.Format(time.RFC3339Nano),
	}
	if err := r.store.HSet(ctx, r.embKey(rec.AllowanceID), fields); err != nil {
		return fmt.Errorf("hset embedding %d: %w", rec.AllowanceID, err)
	}
	return nil
}

// Exists reports whether an embedding row is stored for the allowance.
func (r *Repo) Exists(ctx context.Context, allowanceID int64) (bool, error) {
	ok, err := r.store.Exists(ctx, r.embKey(allowanceID))
	if err != nil {
		return false, fmt.Errorf("exists embedding %d: %w", allowanceID, err)
	}
	return ok, nil
}

// Delete removes the embedding row of an allowance. Deleting an allowance
// without a row is a no-op.
func (r *Repo) Delete(ctx context.Context, allowanceID int64) error {
	ok, err := r.Exists(ctx, allowanceID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := r.store.Del(ctx, r.embKey(allowanceID)); err != nil {
		return fmt.Errorf("del embedding %d: %w", allowanceID, err)
	}
	return nil
}

// Reset drops every embedding row and the vector index, returning the number
// of rows removed. The index is recreated on the next EnsureIndex call.
func (r *Repo) Reset(ctx context.Context) (int, error) {
	keys, err := r.store.Scan(ctx, r.keyPrefix+"emb:*")
	if err != nil {
		return 0, fmt.Errorf("scan embeddings: %w", err)
	}
	for _, key := range keys {
		if err := r.store.Del(ctx, key); err != nil {
			return 0, fmt.Errorf("del %s: %w", key, err)
		}
	}

	if err := r.store.DropIndex(ctx, r.indexName()); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return 0, fmt.Errorf("drop index %s: %w", r.indexName(), err)
	}
	return len(keys), nil
}

// ListIndexedIDs returns the allowance ids that already have an embedding
// row. Used to discover unindexed catalog entries.
func (r *Repo) ListIndexedIDs(ctx context.Context) ([]int64, error) {
	keys, err := r.store.Scan(ctx, r.keyPrefix+"emb:*")
	if err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}

	ids := make([]int64, 0, len(keys))
	for _, key := range keys {
		raw := strings.TrimPrefix(key, r.keyPrefix+"emb:")
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Search runs a KNN query and returns hits with normalized scores, most
// relevant first. The query vector must be unit-normalized for the cosine
// and dot metrics to produce comparable scores.
func (r *Repo) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchHit, error) {
	if k <= 0 {
		return nil, nil
	}

	result, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       vector,
		K:            k,
		ReturnFields: []string{fieldAllowanceID},
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(result.Entries))
	for _, entry := range result.Entries {
		id, err := r.hitID(entry)
		if err != nil {
			return nil, err
		}
		hits = append(hits, domain.SearchHit{
			AllowanceID: id,
			Score:       r.metric.Score(entry.Distance),
		})
	}
	return hits, nil
}

// hitID resolves the allowance id of a search entry, falling back to the
// key suffix when the field was not returned.
func (r *Repo) hitID(entry db.SearchEntry) (int64, error) {
	if raw, ok := entry.Fields[fieldAllowanceID]; ok && raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			return id, nil
		}
	}
	raw := strings.TrimPrefix(entry.Key, r.keyPrefix+"emb:")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("search hit %q has no allowance id: %w", entry.Key, domain.ErrProcessing)
	}
	return id, nil
}

func (r *Repo) embKey(allowanceID int64) string {
	return fmt.Sprintf("%semb:%d", r.keyPrefix, allowanceID)
}

func (r *Repo) indexName() string {
	return r.keyPrefix + "emb_idx"
}

// distanceMetric maps a similarity metric onto the backend's native
// DISTANCE_METRIC names.
func distanceMetric(m domain.Metric) db.DistanceMetric {
	switch m {
	case domain.MetricDot:
		return db.DistanceIP
	case domain.MetricL2:
		return db.DistanceL2
	default:
		return db.DistanceCosine
	}
}
