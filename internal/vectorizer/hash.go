package vectorizer

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/pravoline/allowdex/internal/domain"
)

// HashModelName identifies the deterministic offline backend in stored
// embedding rows and metrics.
const HashModelName = "hash-v1"

// Hash is the offline fallback vectorizer. It derives a pseudo-random but
// deterministic unit vector from the SHA-256 of the input text, so the same
// text always maps to the same point. It carries no semantic signal and
// exists for air-gapped environments and tests where the real model is
// unavailable.
type Hash struct {
	dim int
}

// NewHash creates the hash vectorizer with the given fixed dimension.
func NewHash(dim int) (*Hash, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: hash vectorizer requires a positive dimension, got %d", domain.ErrValidation, dim)
	}
	return &Hash{dim: dim}, nil
}

// ModelName implements domain.Vectorizer.
func (h *Hash) ModelName() string { return HashModelName }

// Dimension implements domain.Vectorizer.
func (h *Hash) Dimension() int { return h.dim }

// WarmUp is a no-op: there is nothing to load.
func (h *Hash) WarmUp(_ context.Context) error { return nil }

// Embed implements domain.Vectorizer. Empty input returns an empty vector.
// The output is deterministic per input text and unit-normalized.
func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	sum := sha256.Sum256([]byte(text))
	seed := binary.LittleEndian.Uint64(sum[:8])

	vec := make([]float32, h.dim)
	for i := range vec {
		seed, vec[i] = nextUnitFloat(seed)
	}
	return normalizeUnit(vec), nil
}

// nextUnitFloat advances a splitmix64 state and maps the output to [-1, 1).
func nextUnitFloat(state uint64) (uint64, float32) {
	state += 0x9e3779b97f4a7c15
	z := state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31

	// 53 high bits give a uniform float64 in [0, 1); shift into [-1, 1).
	f := float64(z>>11) / (1 << 53)
	return state, float32(2*f - 1)
}
