package vectorizer

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/pravoline/allowdex/internal/domain"
)

func TestHash_Deterministic(t *testing.T) {
	h, err := NewHash(64)
	if err != nil {
		t.Fatalf("NewHash: %v", err)
	}

	a, err := h.Embed(context.Background(), "passage: child care benefit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := h.Embed(context.Background(), "passage: child care benefit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(a) != 64 {
		t.Fatalf("expected dimension 64, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at index %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestHash_DistinctInputsDiffer(t *testing.T) {
	h, _ := NewHash(64)

	a, _ := h.Embed(context.Background(), "query: housing subsidy")
	b, _ := h.Embed(context.Background(), "query: veteran pension")

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("expected different inputs to produce different vectors")
	}
}

func TestHash_UnitNorm(t *testing.T) {
	h, _ := NewHash(128)

	vec, err := h.Embed(context.Background(), "passage: disability allowance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sum float64
	for _, f := range vec {
		sum += float64(f) * float64(f)
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
		t.Errorf("expected unit norm, got %v", math.Sqrt(sum))
	}
}

func TestHash_EmptyInput(t *testing.T) {
	h, _ := NewHash(32)

	vec, err := h.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 0 {
		t.Errorf("expected empty vector, got %d elements", len(vec))
	}
}

func TestNewHash_InvalidDimension(t *testing.T) {
	_, err := NewHash(0)
	if err == nil {
		t.Fatal("expected error for zero dimension")
	}
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(Options{Backend: "bert"})
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestNew_HashBackend(t *testing.T) {
	v, err := New(Options{Backend: BackendHash, Dimension: 16})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ModelName() != HashModelName {
		t.Errorf("expected model %q, got %q", HashModelName, v.ModelName())
	}
	if v.Dimension() != 16 {
		t.Errorf("expected dimension 16, got %d", v.Dimension())
	}
}
