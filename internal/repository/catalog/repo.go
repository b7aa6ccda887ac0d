// Package catalog persists the allowance catalog in Redis hashes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pravoline/allowdex/internal/db"
	"github.com/pravoline/allowdex/internal/domain"
)

// store is the consumer interface for the allowance catalog (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Incr(ctx context.Context, key string) (int64, error)
}

// Repo implements the allowance catalog repository.
type Repo struct {
	store     store
	keyPrefix string
}

// New creates a catalog repository. keyPrefix namespaces all keys,
// e.g. "allowdex:".
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, keyPrefix: keyPrefix}
}

// Create assigns a new id from the sequence and persists the allowance.
// The stored allowance (with its id set) is returned.
func (r *Repo) Create(ctx context.Context, a domain.Allowance) (domain.Allowance, error) {
	id, err := r.store.Incr(ctx, r.seqKey())
	if err != nil {
		return domain.Allowance{}, fmt.Errorf("next allowance id: %w", err)
	}
	a.ID = id

	if err := r.store.HSet(ctx, r.allowanceKey(id), encodeAllowance(a)); err != nil {
		return domain.Allowance{}, fmt.Errorf("hset allowance %d: %w", id, err)
	}
	return a, nil
}

// Get returns one allowance by id.
func (r *Repo) Get(ctx context.Context, id int64) (domain.Allowance, error) {
	fields, err := r.store.HGetAll(ctx, r.allowanceKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.Allowance{}, fmt.Errorf("allowance %d: %w", id, domain.ErrNotFound)
		}
		return domain.Allowance{}, fmt.Errorf("hgetall allowance %d: %w", id, err)
	}
	if len(fields) == 0 {
		return domain.Allowance{}, fmt.Errorf("allowance %d: %w", id, domain.ErrNotFound)
	}
	return decodeAllowance(id, fields)
}

// Delete removes one allowance by id.
func (r *Repo) Delete(ctx context.Context, id int64) error {
	ok, err := r.store.Exists(ctx, r.allowanceKey(id))
	if err != nil {
		return fmt.Errorf("exists allowance %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("allowance %d: %w", id, domain.ErrNotFound)
	}
	if err := r.store.Del(ctx, r.allowanceKey(id)); err != nil {
		return fmt.Errorf("del allowance %d: %w", id, err)
	}
	return nil
}

// ListAll returns every allowance in the catalog ordered by id.
func (r *Repo) ListAll(ctx context.Context) ([]domain.Allowance, error) {
	keys, err := r.store.Scan(ctx, r.keyPrefix+"allowance:*")
	if err != nil {
		return nil, fmt.Errorf("scan allowances: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(keys))
	validKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		id, err := r.idFromKey(key)
		if err != nil {
			continue // foreign key under the prefix
		}
		ids = append(ids, id)
		validKeys = append(validKeys, key)
	}

	rows, err := r.store.HGetAllMulti(ctx, validKeys)
	if err != nil {
		return nil, fmt.Errorf("hgetall allowances: %w", err)
	}

	out := make([]domain.Allowance, 0, len(rows))
	for i, fields := range rows {
		if len(fields) == 0 {
			continue
		}
		a, err := decodeAllowance(ids[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListByIDs returns the allowances found for the given ids, preserving input
// order. Missing ids are skipped; the caller decides whether that is an error.
func (r *Repo) ListByIDs(ctx context.Context, ids []int64) ([]domain.Allowance, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.allowanceKey(id)
	}

	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall allowances: %w", err)
	}

	out := make([]domain.Allowance, 0, len(ids))
	for i, fields := range rows {
		if len(fields) == 0 {
			continue
		}
		a, err := decodeAllowance(ids[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *Repo) allowanceKey(id int64) string {
	return fmt.Sprintf("%sallowance:%d", r.keyPrefix, id)
}

func (r *Repo) seqKey() string {
	return r.keyPrefix + "seq:allowance"
}

func (r *Repo) idFromKey(key string) (int64, error) {
	raw := strings.TrimPrefix(key, r.keyPrefix+"allowance:")
	return strconv.ParseInt(raw, 10, 64)
}
