package search

import (
	"context"

	"github.com/pravoline/allowdex/internal/domain"
)

// EmbeddingSearcher defines the vector search contract.
type EmbeddingSearcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]domain.SearchHit, error)
}

// CatalogReader joins search hits back to catalog entries.
type CatalogReader interface {
	ListByIDs(ctx context.Context, ids []int64) ([]domain.Allowance, error)
}

// Syncer backfills embeddings for catalog entries that have none. Search
// runs it up front so every entry is retrievable.
type Syncer interface {
	IndexMissing(ctx context.Context) (int, error)
}

// Result is one search response entry.
type Result struct {
	ItemID   int64   `json:"item_id"`
	ItemName string  `json:"item_name"`
	Score    float64 `json:"score"`
}

// Vector is the response of an ad-hoc vectorization request.
type Vector struct {
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Values    []float32 `json:"values"`
}
