package state

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is a KVStore kept in process memory. Transactions are serialized.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrStoreClosed
	}
	v, ok := s.data[key]
	return clone(v), ok, nil
}

func (s *MemoryStore) Range(ctx context.Context, prefix string) ([]KV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return rangeMap(s.data, nil, prefix), nil
}

// Atomic runs fn against a staging overlay and applies its writes only when fn succeeds.
func (s *MemoryStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{base: s.data, staged: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.staged {
		if v == nil {
			delete(s.data, k)
			continue
		}
		s.data[k] = v
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// memoryTx reads through its staged writes; a nil staged value marks a delete.
type memoryTx struct {
	base   map[string][]byte
	staged map[string][]byte
}

func (t *memoryTx) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := t.staged[key]; ok {
		return clone(v), v != nil, nil
	}
	v, ok := t.base[key]
	return clone(v), ok, nil
}

func (t *memoryTx) Range(ctx context.Context, prefix string) ([]KV, error) {
	return rangeMap(t.base, t.staged, prefix), nil
}

func (t *memoryTx) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if value == nil {
		value = []byte{}
	}
	t.staged[key] = clone(value)
	return nil
}

func (t *memoryTx) Delete(ctx context.Context, key string) error {
	t.staged[key] = nil
	return nil
}

func rangeMap(base, staged map[string][]byte, prefix string) []KV {
	merged := make(map[string][]byte)
	for k, v := range base {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}
	for k, v := range staged {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]KV, 0, len(keys))
	for _, k := range keys {
		out = append(out, KV{Key: k, Value: clone(merged[k])})
	}
	return out
}

func clone(v []byte) []byte {
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
