package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "fetch-cache:object:"

// RedisBackend stores each object as a hash with "body" and "url" fields.
type RedisBackend struct {
	rdb *redis.Client
}

func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	if rdb == nil {
		panic("redis client cannot be nil")
	}
	return &RedisBackend{rdb: rdb}
}

func (r *RedisBackend) Head(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Put reads body fully and sets both fields in one transaction. An existing
// object is kept; the first write wins.
func (r *RedisBackend) Put(ctx context.Context, key string, body io.Reader, size int64, meta Metadata) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	k := redisKeyPrefix + key
	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, k).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, "body", b, "url", meta.URL)
			return nil
		})
		return err
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		// Another writer created the key after WATCH.
		return nil
	}
	return err
}

func (r *RedisBackend) Get(ctx context.Context, key string) (*StoredObject, bool, error) {
	vals, err := r.rdb.HMGet(ctx, redisKeyPrefix+key, "body", "url").Result()
	if err != nil {
		return nil, false, err
	}
	if len(vals) != 2 || vals[0] == nil {
		return nil, false, nil
	}
	body, _ := vals[0].(string)
	u, _ := vals[1].(string)
	return &StoredObject{
		Key:  key,
		URL:  u,
		Size: int64(len(body)),
		Body: io.NopCloser(bytes.NewReader([]byte(body))),
	}, true, nil
}
