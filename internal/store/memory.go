package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sort"
	"sync"
)

// MemoryTable is a Table kept in process memory. Records are stored encoded
// so callers never share state with the table.
type MemoryTable[T any] struct {
	mu   sync.RWMutex
	name string
	key  KeyFunc[T]
	docs map[string][]byte
}

var _ Table[struct{}] = (*MemoryTable[struct{}])(nil)

// NewMemoryTable returns an empty in-memory table.
func NewMemoryTable[T any](name string, key KeyFunc[T]) *MemoryTable[T] {
	return &MemoryTable[T]{name: name, key: key, docs: make(map[string][]byte)}
}

// Len returns the number of stored records.
func (t *MemoryTable[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.docs)
}

func (t *MemoryTable[T]) Upsert(ctx context.Context, rec T) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Unchanged, err
	}
	key := t.key(rec)
	if key == "" {
		return Unchanged, fmt.Errorf("%s: record has empty key", t.name)
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return Unchanged, fmt.Errorf("%s: encoding %s: %w", t.name, key, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.docs[key]
	switch {
	case !ok:
		t.docs[key] = doc
		return Inserted, nil
	case bytes.Equal(existing, doc):
		return Unchanged, nil
	default:
		t.docs[key] = doc
		return Updated, nil
	}
}

func (t *MemoryTable[T]) Get(ctx context.Context, key string) (T, error) {
	var rec T
	if err := ctx.Err(); err != nil {
		return rec, err
	}
	t.mu.RLock()
	doc, ok := t.docs[key]
	t.mu.RUnlock()
	if !ok {
		return rec, fmt.Errorf("%s %q: %w", t.name, key, ErrNotFound)
	}
	if err := json.Unmarshal(doc, &rec); err != nil {
		return rec, fmt.Errorf("%s: decoding %s: %w", t.name, key, err)
	}
	return rec, nil
}

func (t *MemoryTable[T]) Query(ctx context.Context, match func(T) bool) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		t.mu.RLock()
		keys := make([]string, 0, len(t.docs))
		for k := range t.docs {
			keys = append(keys, k)
		}
		t.mu.RUnlock()
		sort.Strings(keys)

		for _, k := range keys {
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}
			rec, err := t.Get(ctx, k)
			if err != nil {
				yield(zero, err)
				return
			}
			if match != nil && !match(rec) {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}
