package catalog

import (
	"context"

	"github.com/pravoline/allowdex/internal/domain"
)

// Repository defines the storage contract for the allowance catalog.
type Repository interface {
	Create(ctx context.Context, a domain.Allowance) (domain.Allowance, error)
	Get(ctx context.Context, id int64) (domain.Allowance, error)
	Delete(ctx context.Context, id int64) error
	ListAll(ctx context.Context) ([]domain.Allowance, error)
}

// Indexer keeps the embedding store in step with catalog changes. Optional.
type Indexer interface {
	IndexAllowance(ctx context.Context, a domain.Allowance) (bool, error)
	RemoveAllowance(ctx context.Context, id int64) error
}
