// Package vectorizer provides the text-to-vector encoders. Two backends
// exist behind the domain.Vectorizer contract: "openai" talks to an
// OpenAI-compatible embeddings API (a hosted provider or a local TEI/vLLM
// server) with lazy single-flight model loading, and "hash" is a
// deterministic offline fallback with no network dependency.
package vectorizer

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/pravoline/allowdex/internal/domain"
)

// Backend identifiers accepted by New.
const (
	BackendOpenAI = "openai"
	BackendHash   = "hash"
)

// Options configures the vectorizer factory.
type Options struct {
	Backend     string
	APIKey      string
	BaseURL     string
	Model       string
	Dimension   int
	LoadTimeout time.Duration
	Logger      *zap.Logger
}

// New constructs the vectorizer selected by opts.Backend. The backend is
// chosen once at construction time; callers only see domain.Vectorizer.
func New(opts Options) (domain.Vectorizer, error) {
	switch opts.Backend {
	case BackendOpenAI:
		return NewRemote(opts), nil
	case BackendHash:
		return NewHash(opts.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown vectorizer backend %q", domain.ErrValidation, opts.Backend)
	}
}

// normalizeUnit scales a vector to unit length so downstream dot-product and
// cosine computations are consistent. A zero vector is returned unchanged.
func normalizeUnit(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}
