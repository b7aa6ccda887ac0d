// Package allowdex embeds the semantic allowance search pipeline into a Go
// application: catalog storage, embedding sync, and vector search over
// Redis, without running the HTTP server.
package allowdex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pravoline/allowdex/internal/db"
	dbRedis "github.com/pravoline/allowdex/internal/db/redis"
	"github.com/pravoline/allowdex/internal/domain"
	catalogrepo "github.com/pravoline/allowdex/internal/repository/catalog"
	embeddingrepo "github.com/pravoline/allowdex/internal/repository/embedding"
	cataloguc "github.com/pravoline/allowdex/internal/usecase/catalog"
	indexuc "github.com/pravoline/allowdex/internal/usecase/index"
	searchuc "github.com/pravoline/allowdex/internal/usecase/search"
	"github.com/pravoline/allowdex/internal/vectorizer"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultKeyPrefix        = "allowdex:"
	defaultHashDim          = 384
)

// Allowance is a public snapshot of one catalog entry.
type Allowance struct {
	ID             int64
	Name           string
	LegalBasis     string
	Level          string
	Subjects       []string
	ValidityPeriod string
}

// SearchResult is one semantic search hit.
type SearchResult struct {
	ItemID   int64
	ItemName string
	Score    float64
}

// Client is the allowdex SDK entry point.
type Client struct {
	store      db.Store
	catalogSvc *cataloguc.Service
	searchSvc  *searchuc.Service
	indexSvc   *indexuc.Service
}

// New creates an allowdex Client and connects to the database.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		keyPrefix:    defaultKeyPrefix,
		metric:       string(domain.MetricCosine),
		hashDim:      defaultHashDim,
		minScore:     0.3,
		defaultLimit: 5,
		maxLimit:     50,
	}
	for _, o := range opts {
		o(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("allowdex: database address required (use WithRedis)")
	}

	metric, err := domain.ParseMetric(cfg.metric)
	if err != nil {
		return nil, fmt.Errorf("allowdex: %w", err)
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("allowdex: create store: %w", err)
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("allowdex: database not ready: %w", err)
	}

	return wireClient(store, cfg, metric)
}

func wireClient(store db.Store, cfg *clientConfig, metric domain.Metric) (*Client, error) {
	vec, err := resolveVectorizer(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	logger := zap.NewNop()

	catalogRepo := catalogrepo.New(store, cfg.keyPrefix)
	embRepo := embeddingrepo.New(store, cfg.keyPrefix, metric)

	indexSvc := indexuc.New(catalogRepo, embRepo, vec, logger)
	catalogSvc := cataloguc.New(catalogRepo, indexSvc, logger)
	searchSvc := searchuc.New(embRepo, catalogRepo, indexSvc, vec, nil, searchuc.Options{
		Metric:       metric,
		MinScore:     cfg.minScore,
		DefaultLimit: cfg.defaultLimit,
		MaxLimit:     cfg.maxLimit,
	}, logger)

	return &Client{
		store:      store,
		catalogSvc: catalogSvc,
		searchSvc:  searchSvc,
		indexSvc:   indexSvc,
	}, nil
}

func resolveVectorizer(cfg *clientConfig) (domain.Vectorizer, error) {
	if cfg.vectorizer != nil {
		return &vectorizerAdapter{inner: cfg.vectorizer}, nil
	}
	hash, err := vectorizer.NewHash(cfg.hashDim)
	if err != nil {
		return nil, fmt.Errorf("allowdex: %w", err)
	}
	return hash, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// AddAllowance stores a new catalog entry and embeds it.
func (c *Client) AddAllowance(ctx context.Context, a Allowance) (Allowance, error) {
	created, err := c.catalogSvc.Create(ctx, domain.Allowance{
		Name:           a.Name,
		LegalBasis:     a.LegalBasis,
		Level:          a.Level,
		Subjects:       a.Subjects,
		ValidityPeriod: a.ValidityPeriod,
	})
	if err != nil {
		return Allowance{}, fmt.Errorf("add allowance: %w", err)
	}
	return allowanceFromDomain(created), nil
}

// Allowances lists all catalog entries.
func (c *Client) Allowances(ctx context.Context) ([]Allowance, error) {
	items, err := c.catalogSvc.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list allowances: %w", err)
	}
	out := make([]Allowance, len(items))
	for i, a := range items {
		out[i] = allowanceFromDomain(a)
	}
	return out, nil
}

// Search runs a semantic search. limit 0 uses the default.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	results, err := c.searchSvc.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{ItemID: r.ItemID, ItemName: r.ItemName, Score: r.Score}
	}
	return out, nil
}

// SyncMissing embeds every catalog entry that has no vector yet and returns
// the number of newly indexed entries.
func (c *Client) SyncMissing(ctx context.Context) (int, error) {
	count, err := c.indexSvc.IndexMissing(ctx)
	if err != nil {
		return 0, fmt.Errorf("sync missing: %w", err)
	}
	return count, nil
}

func allowanceFromDomain(a domain.Allowance) Allowance {
	return Allowance{
		ID:             a.ID,
		Name:           a.Name,
		LegalBasis:     a.LegalBasis,
		Level:          a.Level,
		Subjects:       a.Subjects,
		ValidityPeriod: a.ValidityPeriod,
	}
}

// vectorizerAdapter wraps the public Vectorizer to satisfy domain.Vectorizer.
type vectorizerAdapter struct {
	inner Vectorizer
}

func (a *vectorizerAdapter) ModelName() string { return a.inner.ModelName() }
func (a *vectorizerAdapter) Dimension() int    { return a.inner.Dimension() }

func (a *vectorizerAdapter) WarmUp(ctx context.Context) error {
	if err := a.inner.WarmUp(ctx); err != nil {
		return fmt.Errorf("warm up: %w", err)
	}
	return nil
}

func (a *vectorizerAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := a.inner.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return vec, nil
}
