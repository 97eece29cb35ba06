package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/elys-network/fluxpool/internal/logger"
	"github.com/redis/go-redis/v9"
)

const scanBatch = 256

// redisReader is the read subset shared by *redis.Client and *redis.Tx.
type redisReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// RedisStore keeps every key as a Redis string under a namespace.
// Transactions use WATCH on every key read and commit through MULTI/EXEC, retrying when a
// watched key changed underneath.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int, namespace string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return NewRedisStoreFromClient(client, namespace), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, namespace string) *RedisStore {
	if namespace != "" && !strings.HasSuffix(namespace, ":") {
		namespace += ":"
	}
	return &RedisStore{client: client, namespace: namespace}
}

func (s *RedisStore) key(k string) string {
	return s.namespace + k
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return redisGet(ctx, s.client, s.key(key))
}

func (s *RedisStore) Range(ctx context.Context, prefix string) ([]KV, error) {
	keys, err := scanKeys(ctx, s.client, s.key(prefix))
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, s.client, keys)
}

// Atomic runs fn inside an optimistic WATCH transaction.
func (s *RedisStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	log := logger.GetForComponent("redis_store")

	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &redisTx{store: s, rtx: rtx, staged: make(map[string][]byte)}
			if err := fn(tx); err != nil {
				return err
			}
			return tx.commit(ctx)
		})
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		log.Warn().Int("attempt", attempt).Msg("Watched key changed, retrying transaction")
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", maxTxAttempts, redis.TxFailedErr)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func redisGet(ctx context.Context, c redisReader, key string) ([]byte, bool, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, true, nil
}

func scanKeys(ctx context.Context, c redisReader, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.Scan(ctx, cursor, escapeGlob(prefix)+"*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", prefix, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	// SCAN may return a key more than once
	sort.Strings(keys)
	out := keys[:0]
	for i, k := range keys {
		if i == 0 || k != keys[i-1] {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *RedisStore) fetch(ctx context.Context, c redisReader, keys []string) ([]KV, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %d keys: %w", len(keys), err)
	}

	out := make([]KV, 0, len(keys))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// deleted between SCAN and MGET
			continue
		}
		out = append(out, KV{Key: strings.TrimPrefix(keys[i], s.namespace), Value: []byte(str)})
	}
	return out, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// redisTx buffers writes until commit; a nil staged value marks a delete.
type redisTx struct {
	store  *RedisStore
	rtx    *redis.Tx
	staged map[string][]byte
}

func (t *redisTx) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := t.staged[key]; ok {
		return clone(v), v != nil, nil
	}
	full := t.store.key(key)
	if err := t.rtx.Watch(ctx, full).Err(); err != nil {
		return nil, false, fmt.Errorf("failed to watch %s: %w", full, err)
	}
	return redisGet(ctx, t.rtx, full)
}

func (t *redisTx) Range(ctx context.Context, prefix string) ([]KV, error) {
	keys, err := scanKeys(ctx, t.rtx, t.store.key(prefix))
	if err != nil {
		return nil, err
	}
	if len(keys) > 0 {
		if err := t.rtx.Watch(ctx, keys...).Err(); err != nil {
			return nil, fmt.Errorf("failed to watch range %s: %w", prefix, err)
		}
	}
	stored, err := t.store.fetch(ctx, t.rtx, keys)
	if err != nil {
		return nil, err
	}

	base := make(map[string][]byte, len(stored))
	for _, kv := range stored {
		base[kv.Key] = kv.Value
	}
	return rangeMap(base, t.staged, prefix), nil
}

func (t *redisTx) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if value == nil {
		value = []byte{}
	}
	t.staged[key] = clone(value)
	return nil
}

func (t *redisTx) Delete(ctx context.Context, key string) error {
	t.staged[key] = nil
	return nil
}

func (t *redisTx) commit(ctx context.Context) error {
	if len(t.staged) == 0 {
		return nil
	}
	_, err := t.rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range t.staged {
			if v == nil {
				pipe.Del(ctx, t.store.key(k))
				continue
			}
			pipe.Set(ctx, t.store.key(k), v, 0)
		}
		return nil
	})
	return err
}
