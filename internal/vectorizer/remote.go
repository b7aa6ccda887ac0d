package vectorizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pravoline/allowdex/internal/domain"
	"github.com/pravoline/allowdex/internal/metrics"
)

type loadState int

const (
	stateUnloaded loadState = iota
	stateLoading
	stateReady
	stateFailed
)

// loadProbeText is sent once during model load to verify availability and
// learn the output dimension.
const loadProbeText = "query: warm up"

// Remote encodes text via an OpenAI-compatible embeddings API (a hosted
// provider or a local TEI/vLLM server). The model is loaded lazily: the
// first Embed or WarmUp call performs a probe request under a single-flight
// guard, so concurrent callers share one load instead of stampeding the
// backend. A load timeout reverts the state to unloaded so a later call can
// retry; a dimension mismatch is structural and marks the vectorizer failed
// for good.
type Remote struct {
	client      *openai.Client
	model       string
	loadTimeout time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	state    loadState
	dim      int   // configured, or adopted from the model when unset
	fatalErr error // set once on structural failure

	loadGroup singleflight.Group
}

// NewRemote creates the OpenAI-backed vectorizer. No request is made until
// the first Embed or WarmUp call.
func NewRemote(opts Options) *Remote {
	clientCfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		clientCfg.BaseURL = opts.BaseURL
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Remote{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       opts.Model,
		dim:         opts.Dimension,
		loadTimeout: opts.LoadTimeout,
		logger:      logger,
	}
}

// ModelName implements domain.Vectorizer.
func (r *Remote) ModelName() string { return r.model }

// Dimension reports the vector width. Zero until the first successful load
// when the configured dimension was unset.
func (r *Remote) Dimension() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dim
}

// WarmUp forces the model load ahead of traffic.
func (r *Remote) WarmUp(ctx context.Context) error {
	return r.ensureReady(ctx)
}

// Embed implements domain.Vectorizer. Empty input returns an empty vector
// without touching the model. The returned vector is unit-normalized.
func (r *Remote) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	if err := r.ensureReady(ctx); err != nil {
		return nil, err
	}

	vec, err := r.requestEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	dim := r.dim
	r.mu.Unlock()
	if len(vec) != dim {
		return nil, fmt.Errorf("embed %q: %w", r.model,
			domain.NewDimensionMismatch(r.model, dim, len(vec)))
	}

	return normalizeUnit(vec), nil
}

// ensureReady drives the Unloaded -> Loading -> Ready transition. Only one
// caller performs the actual load; the rest await the same in-flight result.
func (r *Remote) ensureReady(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case stateReady:
		r.mu.Unlock()
		return nil
	case stateFailed:
		err := r.fatalErr
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	_, err, _ := r.loadGroup.Do("load", func() (interface{}, error) {
		// Re-check after winning the flight: a previous winner may have
		// finished between our state check and Do.
		r.mu.Lock()
		switch r.state {
		case stateReady:
			r.mu.Unlock()
			return nil, nil
		case stateFailed:
			err := r.fatalErr
			r.mu.Unlock()
			return nil, err
		}
		r.state = stateLoading
		r.mu.Unlock()

		return nil, r.load(ctx)
	})
	return err
}

// load probes the model once and reconciles the output dimension with the
// configured one. Runs inside the single-flight group.
func (r *Remote) load(ctx context.Context) error {
	loadCtx := ctx
	if r.loadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, r.loadTimeout)
		defer cancel()
	}

	start := time.Now()
	vec, err := r.requestEmbedding(loadCtx, loadProbeText)
	duration := time.Since(start)

	if err != nil {
		r.mu.Lock()
		r.state = stateUnloaded
		r.mu.Unlock()

		metrics.ModelLoadDuration.WithLabelValues(r.model, "error").Observe(duration.Seconds())

		if errors.Is(err, context.DeadlineExceeded) {
			r.logger.Error("Model load timed out",
				zap.String("model", r.model),
				zap.Duration("timeout", r.loadTimeout),
			)
			return domain.NewLoadTimeout(r.model, r.loadTimeout)
		}
		r.logger.Error("Model load failed",
			zap.String("model", r.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return fmt.Errorf("load model %q: %w", r.model, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dim > 0 && len(vec) != r.dim {
		r.state = stateFailed
		r.fatalErr = domain.NewDimensionMismatch(r.model, r.dim, len(vec))
		metrics.ModelLoadDuration.WithLabelValues(r.model, "error").Observe(duration.Seconds())
		r.logger.Error("Model dimension mismatch",
			zap.String("model", r.model),
			zap.Int("configured", r.dim),
			zap.Int("reported", len(vec)),
		)
		return r.fatalErr
	}

	if r.dim <= 0 {
		r.dim = len(vec)
		r.logger.Info("Adopted model-reported dimension",
			zap.String("model", r.model),
			zap.Int("dimension", r.dim),
		)
	}

	r.state = stateReady
	metrics.ModelLoadDuration.WithLabelValues(r.model, "success").Observe(duration.Seconds())
	r.logger.Info("Model ready",
		zap.String("model", r.model),
		zap.Int("dimension", r.dim),
		zap.Duration("load_duration", duration),
	)
	return nil
}

// requestEmbedding performs one embeddings API call with transport metrics.
func (r *Remote) requestEmbedding(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          openai.EmbeddingModel(r.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}

	start := time.Now()
	resp, err := r.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(BackendOpenAI, r.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(BackendOpenAI, r.model, "api_error").Inc()
		return nil, parseAPIError(err)
	}

	if len(resp.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(BackendOpenAI, r.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(BackendOpenAI, r.model, "empty_response").Inc()
		return nil, fmt.Errorf("empty embedding response: %w", domain.ErrProcessing)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(BackendOpenAI, r.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(BackendOpenAI, r.model).Observe(duration.Seconds())

	return resp.Data[0].Embedding, nil
}

// parseAPIError extracts a human-readable error from the API response.
// Deadline errors pass through unwrapped so the load path can detect them;
// everything else is wrapped with domain.ErrProcessing.
func parseAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("embedding API error %d: %s: %w",
			reqErr.HTTPStatusCode, detail, domain.ErrProcessing)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrProcessing)
	}

	return fmt.Errorf("embedding request failed: %v: %w", err, domain.ErrProcessing)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
