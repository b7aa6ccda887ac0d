package domain

import (
	"context"
	"time"
)

// EmbeddingRecord is the persisted vector representation of an allowance.
// At most one record exists per allowance; re-embedding replaces the record
// in place.
type EmbeddingRecord struct {
	AllowanceID int64
	Model       string
	Vector      []float32
	CreatedAt   time.Time
}

// SearchHit is a raw vector search match before the catalog join: the
// allowance id plus the already-normalized relevance score.
type SearchHit struct {
	AllowanceID int64
	Score       float64
}

// Candidate pairs an allowance snapshot with a normalized relevance score.
// Scores are always in [-1, 1] regardless of the metric that produced them,
// so candidates from different pipeline stages stay comparable.
type Candidate struct {
	Allowance Allowance
	Score     float64
}

// Vectorizer is the shared text vectorization contract between layers.
// Embed returns a unit-normalized vector; empty input yields an empty vector
// without touching the model.
type Vectorizer interface {
	ModelName() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	WarmUp(ctx context.Context) error
}

// Reranker jointly scores (query, document) pairs with a cross-encoder.
// Scores are returned in document order; no documents means no model call.
type Reranker interface {
	ModelName() string
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
	WarmUp(ctx context.Context) error
}
