// Package search orchestrates the semantic search pipeline: query building,
// vectorization, KNN retrieval, threshold filtering, and optional
// cross-encoder reranking.
package search

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/pravoline/allowdex/internal/domain"
	"github.com/pravoline/allowdex/internal/metrics"
	"github.com/pravoline/allowdex/internal/passage"
)

// Options holds the search pipeline tuning knobs.
type Options struct {
	Metric       domain.Metric
	MinScore     float64 // scores below are dropped; <= 0 disables the filter
	DefaultLimit int
	MaxLimit     int
	RerankPool   int
	RerankTopK   int
}

// Service runs semantic searches over the embedding store.
type Service struct {
	embeddings EmbeddingSearcher
	catalog    CatalogReader
	syncer     Syncer
	vectorizer domain.Vectorizer
	reranker   domain.Reranker // nil when reranking is disabled
	opts       Options
	logger     *zap.Logger
}

// New creates the search service. Pass a nil reranker to disable reranking.
func New(
	embeddings EmbeddingSearcher,
	catalog CatalogReader,
	syncer Syncer,
	vectorizer domain.Vectorizer,
	reranker domain.Reranker,
	opts Options,
	logger *zap.Logger,
) *Service {
	return &Service{
		embeddings: embeddings,
		catalog:    catalog,
		syncer:     syncer,
		vectorizer: vectorizer,
		reranker:   reranker,
		opts:       opts,
		logger:     logger,
	}
}

// Search returns the catalog entries most relevant to the query, best first.
// Empty queries yield an empty list, not an error.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	// Backfill before retrieval so unindexed entries are not invisible.
	// A sync failure fails the search rather than returning partial results.
	if count, err := s.syncer.IndexMissing(ctx); err != nil {
		return nil, fmt.Errorf("sync missing embeddings: %w", err)
	} else if count > 0 {
		s.logger.Info("Backfilled embeddings before search", zap.Int("count", count))
	}

	limit = s.clampLimit(limit)

	queryText := passage.BuildQuery(query)
	if queryText == "" {
		return []Result{}, nil
	}

	vec, err := s.vectorizer.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) == 0 {
		return []Result{}, nil
	}

	searchLimit := limit
	if s.reranker != nil && s.opts.RerankPool > searchLimit {
		searchLimit = s.opts.RerankPool
	}

	hits, err := s.embeddings.Search(ctx, vec, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if s.opts.MinScore > 0 {
		filtered := hits[:0]
		for _, hit := range hits {
			if hit.Score >= s.opts.MinScore {
				filtered = append(filtered, hit)
			}
		}
		hits = filtered
	}
	if len(hits) == 0 {
		s.observeSearch(false)
		return []Result{}, nil
	}

	candidates, err := s.joinCatalog(ctx, hits)
	if err != nil {
		return nil, err
	}

	reranked := false
	if s.reranker != nil && len(candidates) > 0 {
		var rescored []domain.Candidate
		rescored, reranked, err = s.rerank(ctx, passage.Normalize(query), candidates)
		if err != nil {
			return nil, err
		}
		if reranked {
			candidates = rescored
			if topK := s.opts.RerankTopK; topK > 0 && topK < limit {
				limit = topK
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	s.observeSearch(reranked)

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{
			ItemID:   c.Allowance.ID,
			ItemName: c.Allowance.Name,
			Score:    c.Score,
		}
	}
	return results, nil
}

// VectorizeInput embeds an arbitrary text with the query convention. Unlike
// searches, an empty input here is a validation error since the caller asked
// for a vector explicitly.
func (s *Service) VectorizeInput(ctx context.Context, text string) (Vector, error) {
	queryText := passage.BuildQuery(text)
	if queryText == "" {
		return Vector{}, fmt.Errorf("%w: input text is empty", domain.ErrValidation)
	}

	vec, err := s.vectorizer.Embed(ctx, queryText)
	if err != nil {
		return Vector{}, fmt.Errorf("embed input: %w", err)
	}
	return Vector{
		Model:     s.vectorizer.ModelName(),
		Dimension: len(vec),
		Values:    vec,
	}, nil
}

// joinCatalog resolves hits into candidates, dropping hits whose catalog row
// no longer exists.
func (s *Service) joinCatalog(ctx context.Context, hits []domain.SearchHit) ([]domain.Candidate, error) {
	ids := make([]int64, len(hits))
	for i, hit := range hits {
		ids[i] = hit.AllowanceID
	}

	items, err := s.catalog.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("join catalog: %w", err)
	}

	byID := make(map[int64]domain.Allowance, len(items))
	for _, a := range items {
		byID[a.ID] = a
	}

	candidates := make([]domain.Candidate, 0, len(hits))
	for _, hit := range hits {
		a, ok := byID[hit.AllowanceID]
		if !ok {
			s.logger.Warn("Search hit without catalog entry",
				zap.Int64("allowance_id", hit.AllowanceID))
			continue
		}
		candidates = append(candidates, domain.Candidate{Allowance: a, Score: hit.Score})
	}
	return candidates, nil
}

// rerank rescoring replaces the vector scores of up to RerankPool candidates
// with cross-encoder scores against the normalized query. When no candidate
// produces a document the pool is returned untouched with reranked=false and
// the vector-score ordering stands.
func (s *Service) rerank(ctx context.Context, query string, candidates []domain.Candidate) ([]domain.Candidate, bool, error) {
	pool := candidates
	if s.opts.RerankPool > 0 && len(pool) > s.opts.RerankPool {
		pool = pool[:s.opts.RerankPool]
	}

	docs := make([]string, len(pool))
	producible := false
	for i, c := range pool {
		docs[i] = passage.BuildDocument(c.Allowance)
		if docs[i] != "" {
			producible = true
		}
	}
	if !producible {
		s.logger.Warn("Rerank skipped: no candidate produces a document")
		return candidates, false, nil
	}

	scores, err := s.reranker.Score(ctx, query, docs)
	if err != nil {
		return nil, false, fmt.Errorf("rerank: %w", err)
	}
	if len(scores) != len(pool) {
		return nil, false, fmt.Errorf("rerank returned %d scores for %d candidates: %w",
			len(scores), len(pool), domain.ErrProcessing)
	}

	out := make([]domain.Candidate, len(pool))
	for i, c := range pool {
		c.Score = scores[i]
		out[i] = c
	}
	return out, true, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}
	if s.opts.MaxLimit > 0 && limit > s.opts.MaxLimit {
		limit = s.opts.MaxLimit
	}
	return limit
}

func (s *Service) observeSearch(reranked bool) {
	metrics.SearchesTotal.WithLabelValues(string(s.opts.Metric), strconv.FormatBool(reranked)).Inc()
}
