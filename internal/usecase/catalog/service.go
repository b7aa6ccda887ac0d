// Package catalog manages the allowance catalog entries.
package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pravoline/allowdex/internal/domain"
)

// Service handles catalog CRUD operations.
type Service struct {
	repo    Repository
	indexer Indexer // nil disables index-on-create
	logger  *zap.Logger
}

// New creates a catalog service. Pass a nil indexer to skip embedding new
// entries on creation.
func New(repo Repository, indexer Indexer, logger *zap.Logger) *Service {
	return &Service{repo: repo, indexer: indexer, logger: logger}
}

// Create validates and stores a new allowance, then embeds it best-effort.
// An indexing failure does not fail the creation; the sync endpoint picks
// the entry up later.
func (s *Service) Create(ctx context.Context, a domain.Allowance) (domain.Allowance, error) {
	if a.Name == "" {
		return domain.Allowance{}, fmt.Errorf("%w: allowance name is required", domain.ErrValidation)
	}

	created, err := s.repo.Create(ctx, a)
	if err != nil {
		return domain.Allowance{}, fmt.Errorf("create allowance: %w", err)
	}

	if s.indexer != nil {
		if _, err := s.indexer.IndexAllowance(ctx, created); err != nil {
			s.logger.Warn("Failed to index new allowance",
				zap.Int64("allowance_id", created.ID),
				zap.Error(err),
			)
		}
	}
	return created, nil
}

// Delete removes an allowance and its embedding row. A failure to drop the
// embedding does not undo the deletion; the row is orphaned until the next
// rebuild and search drops it at the catalog join.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete allowance: %w", err)
	}

	if s.indexer != nil {
		if err := s.indexer.RemoveAllowance(ctx, id); err != nil {
			s.logger.Warn("Failed to remove embedding of deleted allowance",
				zap.Int64("allowance_id", id),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Get retrieves one allowance by id.
func (s *Service) Get(ctx context.Context, id int64) (domain.Allowance, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Allowance{}, fmt.Errorf("get allowance: %w", err)
	}
	return a, nil
}

// List returns all catalog entries.
func (s *Service) List(ctx context.Context) ([]domain.Allowance, error) {
	items, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list allowances: %w", err)
	}
	return items, nil
}
