package embcache

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

// mockStore implements the cache consumer interface for tests.
type mockStore struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte) error
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, nil
}

func (m *mockStore) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	return nil
}

// mockVectorizer is a fixed-output inner vectorizer.
type mockVectorizer struct {
	model  string
	vector []float32
	err    error
	calls  int
}

func (m *mockVectorizer) ModelName() string { return m.model }
func (m *mockVectorizer) Dimension() int    { return len(m.vector) }

func (m *mockVectorizer) WarmUp(_ context.Context) error { return m.err }

func (m *mockVectorizer) Embed(_ context.Context, _ string) ([]float32, error) {
	m.calls++
	return m.vector, m.err
}

func newTestCachedVectorizer(t *testing.T, inner *mockVectorizer) (*CachedVectorizer, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(inner, ms, "allowdex:", nil, zap.NewNop()), ms
}
