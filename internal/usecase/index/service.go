// Package index keeps the embedding store in sync with the allowance
// catalog: it builds passage documents, embeds them, and upserts one vector
// row per allowance.
package index

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pravoline/allowdex/internal/domain"
	"github.com/pravoline/allowdex/internal/passage"
)

// Service synchronizes catalog entries into the embedding store.
type Service struct {
	catalog    CatalogReader
	embeddings EmbeddingRepository
	vectorizer domain.Vectorizer
	logger     *zap.Logger

	indexMu    sync.Mutex
	indexReady bool
}

// New creates the indexing service.
func New(
	catalog CatalogReader,
	embeddings EmbeddingRepository,
	vectorizer domain.Vectorizer,
	logger *zap.Logger,
) *Service {
	return &Service{
		catalog:    catalog,
		embeddings: embeddings,
		vectorizer: vectorizer,
		logger:     logger,
	}
}

// IndexAllowance embeds one allowance and upserts its vector row. Returns
// false without error when the allowance produces an empty document (nothing
// to embed).
func (s *Service) IndexAllowance(ctx context.Context, a domain.Allowance) (bool, error) {
	doc := passage.BuildDocument(a)
	if doc == "" {
		s.logger.Debug("Skipping allowance with empty document", zap.Int64("allowance_id", a.ID))
		return false, nil
	}

	vec, err := s.vectorizer.Embed(ctx, doc)
	if err != nil {
		return false, fmt.Errorf("embed allowance %d: %w", a.ID, err)
	}
	if len(vec) == 0 {
		return false, nil
	}

	if err := s.ensureIndex(ctx); err != nil {
		return false, err
	}

	rec := domain.EmbeddingRecord{
		AllowanceID: a.ID,
		Model:       s.vectorizer.ModelName(),
		Vector:      vec,
	}
	if err := s.embeddings.Upsert(ctx, rec); err != nil {
		return false, fmt.Errorf("upsert embedding %d: %w", a.ID, err)
	}
	return true, nil
}

// IndexMany applies IndexAllowance sequentially. One item's failure does not
// block the others: failures are logged and skipped, and only the count of
// newly written rows is returned. A cancelled context aborts the batch.
func (s *Service) IndexMany(ctx context.Context, items []domain.Allowance) (int, error) {
	var indexed int
	for _, a := range items {
		ok, err := s.IndexAllowance(ctx, a)
		if err != nil {
			if ctx.Err() != nil {
				return indexed, fmt.Errorf("index allowances: %w", ctx.Err())
			}
			s.logger.Error("Failed to index allowance",
				zap.Int64("allowance_id", a.ID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			indexed++
		}
	}
	return indexed, nil
}

// IndexMissing discovers catalog entries without an embedding row and
// indexes them. When everything is already indexed it returns 0 and no
// error, so callers can distinguish "nothing to do" from real work.
func (s *Service) IndexMissing(ctx context.Context) (int, error) {
	all, err := s.catalog.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list catalog: %w", err)
	}
	if len(all) == 0 {
		return 0, nil
	}

	indexedIDs, err := s.embeddings.ListIndexedIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list indexed ids: %w", err)
	}

	seen := make(map[int64]struct{}, len(indexedIDs))
	for _, id := range indexedIDs {
		seen[id] = struct{}{}
	}

	missing := make([]domain.Allowance, 0, len(all))
	for _, a := range all {
		if _, ok := seen[a.ID]; !ok {
			missing = append(missing, a)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	s.logger.Info("Indexing allowances without embeddings", zap.Int("count", len(missing)))
	return s.IndexMany(ctx, missing)
}

// IndexByIDs indexes the given catalog entries, failing fast on the first
// embedding error. It returns the ids actually indexed and the ids not found
// in the catalog. An empty id list is a validation error; a list where no id
// exists is not found.
func (s *Service) IndexByIDs(ctx context.Context, ids []int64) (processed, missing []int64, err error) {
	if len(ids) == 0 {
		return nil, nil, fmt.Errorf("%w: allowance id list is empty", domain.ErrValidation)
	}

	items, err := s.catalog.ListByIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("list allowances: %w", err)
	}
	if len(items) == 0 {
		return nil, nil, fmt.Errorf("allowances %v: %w", ids, domain.ErrNotFound)
	}

	found := make(map[int64]struct{}, len(items))
	for _, a := range items {
		found[a.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}

	for _, a := range items {
		ok, err := s.IndexAllowance(ctx, a)
		if err != nil {
			return processed, missing, err
		}
		if ok {
			processed = append(processed, a.ID)
		}
	}
	return processed, missing, nil
}

// RemoveAllowance drops the embedding row of a deleted allowance so the
// index stops returning it.
func (s *Service) RemoveAllowance(ctx context.Context, id int64) error {
	if err := s.embeddings.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete embedding %d: %w", id, err)
	}
	return nil
}

// Rebuild drops every embedding row along with the vector index and indexes
// the whole catalog from scratch. Used after a model or dimension change.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	removed, err := s.embeddings.Reset(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset embeddings: %w", err)
	}
	s.logger.Info("Embedding store reset", zap.Int("removed", removed))

	s.indexMu.Lock()
	s.indexReady = false
	s.indexMu.Unlock()

	return s.IndexMissing(ctx)
}

// ensureIndex creates the vector index on first use, once the vectorizer's
// dimension is known.
func (s *Service) ensureIndex(ctx context.Context) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if s.indexReady {
		return nil
	}
	if err := s.embeddings.EnsureIndex(ctx, s.vectorizer.Dimension()); err != nil {
		return fmt.Errorf("ensure vector index: %w", err)
	}
	s.indexReady = true
	return nil
}
