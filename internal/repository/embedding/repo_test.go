package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/pravoline/allowdex/internal/db"
	"github.com/pravoline/allowdex/internal/domain"
)

func TestUpsert_WritesVectorBlob(t *testing.T) {
	var gotKey string
	var gotFields map[string]string
	store := &mockStore{
		hsetFn: func(_ context.Context, key string, fields map[string]string) error {
			gotKey = key
			gotFields = fields
			return nil
		},
	}
	repo := New(store, "allowdex:", domain.MetricCosine)

	rec := domain.EmbeddingRecord{
		AllowanceID: 12,
		Model:       "intfloat/multilingual-e5-base",
		Vector:      []float32{0.6, 0.8},
	}
	if err := repo.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotKey != "allowdex:emb:12" {
		t.Errorf("unexpected key %q", gotKey)
	}
	if gotFields["allowance_id"] != "12" {
		t.Errorf("unexpected allowance_id %q", gotFields["allowance_id"])
	}
	if gotFields["model"] != rec.Model {
		t.Errorf("unexpected model %q", gotFields["model"])
	}

	decoded, err := db.DecodeVector(gotFields["vector"])
	if err != nil {
		t.Fatalf("decode vector: %v", err)
	}
	if len(decoded) != 2 || decoded[0] != 0.6 || decoded[1] != 0.8 {
		t.Errorf("vector roundtrip mismatch: %v", decoded)
	}
}

func TestUpsert_EmptyVector(t *testing.T) {
	repo := New(&mockStore{}, "allowdex:", domain.MetricCosine)

	err := repo.Upsert(context.Background(), domain.EmbeddingRecord{AllowanceID: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestEnsureIndex_CreatesWithMetric(t *testing.T) {
	var gotDef *db.IndexDefinition
	store := &mockStore{
		createIndexFn: func(_ context.Context, def *db.IndexDefinition) error {
			gotDef = def
			return nil
		},
	}
	repo := New(store, "allowdex:", domain.MetricDot)

	if err := repo.EnsureIndex(context.Background(), 384); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotDef == nil {
		t.Fatal("expected index creation")
	}
	if gotDef.Name != "allowdex:emb_idx" {
		t.Errorf("unexpected index name %q", gotDef.Name)
	}

	var vec *db.IndexField
	for i := range gotDef.Fields {
		if gotDef.Fields[i].Type == db.IndexFieldVector {
			vec = &gotDef.Fields[i]
		}
	}
	if vec == nil {
		t.Fatal("expected a vector field in the schema")
	}
	if vec.VectorDim != 384 {
		t.Errorf("expected dim 384, got %d", vec.VectorDim)
	}
	if vec.VectorDistance != db.DistanceIP {
		t.Errorf("expected IP distance for dot metric, got %s", vec.VectorDistance)
	}
}

func TestEnsureIndex_SkipsWhenPresent(t *testing.T) {
	created := false
	store := &mockStore{
		indexExistsFn: func(_ context.Context, _ string) (bool, error) { return true, nil },
		createIndexFn: func(_ context.Context, _ *db.IndexDefinition) error {
			created = true
			return nil
		},
	}
	repo := New(store, "allowdex:", domain.MetricCosine)

	if err := repo.EnsureIndex(context.Background(), 384); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected no index creation")
	}
}

func TestEnsureIndex_InvalidDimension(t *testing.T) {
	repo := New(&mockStore{}, "allowdex:", domain.MetricCosine)

	err := repo.EnsureIndex(context.Background(), 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestListIndexedIDs(t *testing.T) {
	store := &mockStore{
		scanFn: func(_ context.Context, pattern string) ([]string, error) {
			if pattern != "allowdex:emb:*" {
				t.Errorf("unexpected pattern %q", pattern)
			}
			return []string{"allowdex:emb:4", "allowdex:emb:17", "allowdex:emb:bogus"}, nil
		},
	}
	repo := New(store, "allowdex:", domain.MetricCosine)

	ids, err := repo.ListIndexedIDs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != 4 || ids[1] != 17 {
		t.Errorf("expected [4 17], got %v", ids)
	}
}

func TestSearch_NormalizesScores(t *testing.T) {
	cases := []struct {
		metric   domain.Metric
		distance float64
		want     float64
	}{
		{domain.MetricCosine, 0.09, 0.91},
		{domain.MetricDot, 0.25, 0.75},
		{domain.MetricL2, 1.0, 0.5},
	}

	for _, tc := range cases {
		t.Run(string(tc.metric), func(t *testing.T) {
			store := &mockStore{
				searchKNNFn: func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
					if q.IndexName != "allowdex:emb_idx" {
						t.Errorf("unexpected index %q", q.IndexName)
					}
					return &db.SearchResult{
						Total: 1,
						Entries: []db.SearchEntry{
							{Key: "allowdex:emb:3", Distance: tc.distance,
								Fields: map[string]string{"allowance_id": "3"}},
						},
					}, nil
				},
			}
			repo := New(store, "allowdex:", tc.metric)

			hits, err := repo.Search(context.Background(), []float32{1, 0}, 5)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(hits) != 1 {
				t.Fatalf("expected 1 hit, got %d", len(hits))
			}
			if hits[0].AllowanceID != 3 {
				t.Errorf("expected allowance 3, got %d", hits[0].AllowanceID)
			}
			if math.Abs(hits[0].Score-tc.want) > 1e-9 {
				t.Errorf("expected score %v, got %v", tc.want, hits[0].Score)
			}
		})
	}
}

func TestSearch_FallsBackToKeyID(t *testing.T) {
	store := &mockStore{
		searchKNNFn: func(_ context.Context, _ *db.KNNQuery) (*db.SearchResult, error) {
			return &db.SearchResult{
				Total:   1,
				Entries: []db.SearchEntry{{Key: "allowdex:emb:8", Distance: 0.1}},
			}, nil
		},
	}
	repo := New(store, "allowdex:", domain.MetricCosine)

	hits, err := repo.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].AllowanceID != 8 {
		t.Errorf("expected allowance 8 from key, got %v", hits)
	}
}

func TestSearch_ZeroK(t *testing.T) {
	called := false
	store := &mockStore{
		searchKNNFn: func(_ context.Context, _ *db.KNNQuery) (*db.SearchResult, error) {
			called = true
			return &db.SearchResult{}, nil
		},
	}
	repo := New(store, "allowdex:", domain.MetricCosine)

	hits, err := repo.Search(context.Background(), []float32{1, 0}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != nil || called {
		t.Error("expected no search for k=0")
	}
}

func TestUpsert_RejectsWrongWidthVector(t *testing.T) {
	repo := New(&mockStore{}, "allowdex:", domain.MetricCosine)
	if err := repo.EnsureIndex(context.Background(), 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := repo.Upsert(context.Background(), domain.EmbeddingRecord{
		AllowanceID: 1,
		Model:       "hash-v1",
		Vector:      []float32{1, 0},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var mismatch *domain.DimensionMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if mismatch.Expected != 4 || mismatch.Actual != 2 {
		t.Errorf("expected mismatch 4 vs 2, got %+v", mismatch)
	}

	// the fixed width still admits matching vectors
	err = repo.Upsert(context.Background(), domain.EmbeddingRecord{
		AllowanceID: 1,
		Model:       "hash-v1",
		Vector:      []float32{1, 0, 0, 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDelete_SkipsMissingRow(t *testing.T) {
	delCalls := 0
	store := &mockStore{
		delFn: func(_ context.Context, _ string) error {
			delCalls++
			return nil
		},
	}
	repo := New(store, "allowdex:", domain.MetricCosine)

	if err := repo.Delete(context.Background(), 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delCalls != 0 {
		t.Errorf("expected no DEL for a missing row, got %d", delCalls)
	}
}

func TestDelete_RemovesRow(t *testing.T) {
	var gotKey string
	store := &mockStore{
		existsFn: func(_ context.Context, _ string) (bool, error) { return true, nil },
		delFn: func(_ context.Context, key string) error {
			gotKey = key
			return nil
		},
	}
	repo := New(store, "allowdex:", domain.MetricCosine)

	if err := repo.Delete(context.Background(), 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "allowdex:emb:7" {
		t.Errorf("unexpected key %q", gotKey)
	}
}

func TestReset_DropsRowsAndIndex(t *testing.T) {
	var deleted []string
	var droppedIndex string
	store := &mockStore{
		scanFn: func(_ context.Context, pattern string) ([]string, error) {
			if pattern != "allowdex:emb:*" {
				t.Errorf("unexpected scan pattern %q", pattern)
			}
			return []string{"allowdex:emb:1", "allowdex:emb:2"}, nil
		},
		delFn: func(_ context.Context, key string) error {
			deleted = append(deleted, key)
			return nil
		},
		dropIndexFn: func(_ context.Context, name string) error {
			droppedIndex = name
			return nil
		},
	}
	repo := New(store, "allowdex:", domain.MetricCosine)

	count, err := repo.Reset(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 || len(deleted) != 2 {
		t.Errorf("expected 2 rows removed, got count=%d deleted=%v", count, deleted)
	}
	if droppedIndex != "allowdex:emb_idx" {
		t.Errorf("unexpected index %q", droppedIndex)
	}
}

func TestReset_ToleratesMissingIndex(t *testing.T) {
	store := &mockStore{
		dropIndexFn: func(_ context.Context, _ string) error { return db.ErrIndexNotFound },
	}
	repo := New(store, "allowdex:", domain.MetricCosine)

	count, err := repo.Reset(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0, got %d", count)
	}
}
