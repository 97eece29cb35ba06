/*

This file defines the key-value store the pool keeps its state in, plus typed helpers on top of it.
Values are JSON documents. Range iterates keys sharing a prefix in ascending byte order.

*/

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStoreClosed = errors.New("store is closed")
	ErrEmptyKey    = errors.New("key cannot be empty")
)

// KV is a raw key-value pair returned by Range.
type KV struct {
	Key   string
	Value []byte
}

// Reader is the read side shared by stores and transactions.
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Range(ctx context.Context, prefix string) ([]KV, error)
}

// Tx is a read-write view valid for the duration of one Atomic call.
type Tx interface {
	Reader
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// KVStore runs atomic read-modify-write transactions. Writes made by fn become visible only
// if fn returns nil. fn may be invoked more than once on backends that retry on conflict.
type KVStore interface {
	Reader
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Entry is a decoded value with its key.
type Entry[T any] struct {
	Key   string
	Value T
}

// Load decodes the value at key. The boolean is false when the key does not exist.
func Load[T any](ctx context.Context, r Reader, key string) (T, bool, error) {
	var out T
	raw, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return out, true, nil
}

// Save encodes value and stores it at key.
func Save[T any](ctx context.Context, tx Tx, key string, value T) error {
	if key == "" {
		return ErrEmptyKey
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return tx.Set(ctx, key, raw)
}

// Update loads the value at key, applies fn and saves the result. fn receives whether the key
// existed. Nothing is written when fn fails.
func Update[T any](ctx context.Context, tx Tx, key string, fn func(current T, exists bool) (T, error)) error {
	current, exists, err := Load[T](ctx, tx, key)
	if err != nil {
		return err
	}
	next, err := fn(current, exists)
	if err != nil {
		return err
	}
	return Save(ctx, tx, key, next)
}

// RangeAll decodes every value under prefix in ascending key order.
func RangeAll[T any](ctx context.Context, r Reader, prefix string) ([]Entry[T], error) {
	raws, err := r.Range(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Entry[T], 0, len(raws))
	for _, kv := range raws {
		var v T
		if err := json.Unmarshal(kv.Value, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", kv.Key, err)
		}
		out = append(out, Entry[T]{Key: kv.Key, Value: v})
	}
	return out, nil
}

// TrimPrefix returns the key without its namespace prefix.
func TrimPrefix(key, prefix string) string {
	return strings.TrimPrefix(key, prefix)
}
