// Package reranker scores query-document pairs with a cross-encoder model
// served over HTTP (a TEI-compatible /rerank endpoint). It follows the same
// lazy single-flight load discipline as the vectorizer: the first Score or
// WarmUp call probes the endpoint under a timeout, and concurrent callers
// share one in-flight probe.
package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pravoline/allowdex/internal/domain"
	"github.com/pravoline/allowdex/internal/metrics"
)

// Options configures the HTTP reranker.
type Options struct {
	Endpoint    string // base URL of the rerank service
	Model       string
	LoadTimeout time.Duration
	Logger      *zap.Logger
}

// Client is the HTTP cross-encoder reranker.
type Client struct {
	endpoint    string
	model       string
	loadTimeout time.Duration
	httpClient  *http.Client
	logger      *zap.Logger

	mu    sync.Mutex
	ready bool

	loadGroup singleflight.Group
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// New creates the reranker client. No request is made until the first Score
// or WarmUp call.
func New(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("%w: reranker endpoint is required", domain.ErrValidation)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		endpoint:    opts.Endpoint,
		model:       opts.Model,
		loadTimeout: opts.LoadTimeout,
		// no client-level timeout: the load path bounds itself with
		// loadTimeout and scoring runs under the request context, so a
		// fixed cap here would silently shorten a longer load timeout
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

// ModelName implements domain.Reranker.
func (c *Client) ModelName() string { return c.model }

// WarmUp forces the model load ahead of traffic.
func (c *Client) WarmUp(ctx context.Context) error {
	return c.ensureReady(ctx)
}

// Score implements domain.Reranker. Scores are returned in document order.
// An empty document list returns an empty slice without invoking the model.
func (c *Client) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return []float64{}, nil
	}

	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := c.rerank(ctx, query, documents)
	duration := time.Since(start)

	if err != nil {
		metrics.RerankRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return nil, err
	}
	metrics.RerankRequestsTotal.WithLabelValues(c.model, "success").Inc()
	metrics.RerankRequestDuration.WithLabelValues(c.model).Observe(duration.Seconds())

	if len(results) != len(documents) {
		return nil, fmt.Errorf("rerank returned %d scores for %d documents: %w",
			len(results), len(documents), domain.ErrProcessing)
	}

	// The service may return results ordered by score; restore input order.
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	scores := make([]float64, len(documents))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(scores) {
			return nil, fmt.Errorf("rerank returned index %d out of range: %w",
				res.Index, domain.ErrProcessing)
		}
		scores[res.Index] = res.Score
	}
	return scores, nil
}

// ensureReady probes the rerank endpoint once under the load timeout.
func (c *Client) ensureReady(ctx context.Context) error {
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()
	if ready {
		return nil
	}

	_, err, _ := c.loadGroup.Do("load", func() (interface{}, error) {
		c.mu.Lock()
		if c.ready {
			c.mu.Unlock()
			return nil, nil
		}
		c.mu.Unlock()

		loadCtx := ctx
		if c.loadTimeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(ctx, c.loadTimeout)
			defer cancel()
		}

		start := time.Now()
		_, err := c.rerank(loadCtx, "warm up", []string{"warm up"})
		duration := time.Since(start)

		if err != nil {
			metrics.ModelLoadDuration.WithLabelValues(c.model, "error").Observe(duration.Seconds())
			if errors.Is(err, context.DeadlineExceeded) {
				c.logger.Error("Reranker load timed out",
					zap.String("model", c.model),
					zap.Duration("timeout", c.loadTimeout),
				)
				return nil, domain.NewLoadTimeout(c.model, c.loadTimeout)
			}
			c.logger.Error("Reranker load failed",
				zap.String("model", c.model),
				zap.Error(err),
			)
			return nil, fmt.Errorf("load reranker %q: %w", c.model, err)
		}

		c.mu.Lock()
		c.ready = true
		c.mu.Unlock()

		metrics.ModelLoadDuration.WithLabelValues(c.model, "success").Observe(duration.Seconds())
		c.logger.Info("Reranker ready",
			zap.String("model", c.model),
			zap.Duration("load_duration", duration),
		)
		return nil, nil
	})
	return err
}

// rerank performs one POST /rerank call.
func (c *Client) rerank(ctx context.Context, query string, documents []string) ([]rerankResult, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Texts: documents})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("rerank request failed: %v: %w", err, domain.ErrProcessing)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank API error %d: %s: %w",
			resp.StatusCode, bytes.TrimSpace(raw), domain.ErrProcessing)
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode rerank response: %v: %w", err, domain.ErrProcessing)
	}
	return results, nil
}
