package index

import (
	"context"

	"github.com/pravoline/allowdex/internal/domain"
)

// CatalogReader defines the catalog access needed for indexing.
type CatalogReader interface {
	ListAll(ctx context.Context) ([]domain.Allowance, error)
	ListByIDs(ctx context.Context, ids []int64) ([]domain.Allowance, error)
}

// EmbeddingRepository defines the embedding storage contract.
type EmbeddingRepository interface {
	EnsureIndex(ctx context.Context, dim int) error
	Upsert(ctx context.Context, rec domain.EmbeddingRecord) error
	Delete(ctx context.Context, allowanceID int64) error
	Reset(ctx context.Context) (int, error)
	ListIndexedIDs(ctx context.Context) ([]int64, error)
}
