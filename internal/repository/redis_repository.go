package repository

import (
	"CatalogAuth/internal/model"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"time"
)

const deleteRecordScript = `
local existed = redis.call("DEL", KEYS[1])
local current = redis.call("PTTL", KEYS[2])
if current < tonumber(ARGV[1]) then
  redis.call("SET", KEYS[2], "1", "PX", ARGV[1])
end
return existed
`

const replaceRecordScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if not redis.call("SET", KEYS[2], ARGV[1], "NX", "PX", ARGV[2]) then
  return -1
end
redis.call("SET", KEYS[3], "1", "PX", ARGV[2])
redis.call("DEL", KEYS[1])
return 1
`

var (
	deleteRecordLua  = redis.NewScript(deleteRecordScript)
	replaceRecordLua = redis.NewScript(replaceRecordScript)
)

// RedisRepository keeps refresh records as JSON values whose key TTL matches
// the record expiry, so Redis evicts stale records on its own.
type RedisRepository struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	return &RedisRepository{redis: client, prefix: prefix}
}

func (r *RedisRepository) recordKey(tokenID string) string {
	return r.prefix + ":refresh:" + tokenID
}

func (r *RedisRepository) retiredKey(tokenID string) string {
	return r.prefix + ":retired:" + tokenID
}

// ttlUntil never returns zero: go-redis treats a zero expiration as "keep forever".
func ttlUntil(t time.Time) time.Duration {
	ttl := time.Until(t).Truncate(time.Millisecond)
	if ttl < time.Millisecond {
		return time.Millisecond
	}
	return ttl
}

func (r *RedisRepository) Create(ctx context.Context, record model.RefreshRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("ошибка преобразования в json: %w", err)
	}

	ok, err := r.redis.SetNX(ctx, r.recordKey(record.TokenID), data, ttlUntil(record.ExpiresAt)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return ErrRecordExists
	}
	return nil
}

func (r *RedisRepository) FindByTokenID(ctx context.Context, tokenID string) (*model.RefreshRecord, error) {
	var (
		get    *redis.StringCmd
		exists *redis.IntCmd
	)
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, r.recordKey(tokenID))
		exists = pipe.Exists(ctx, r.retiredKey(tokenID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	data, err := get.Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		if exists.Val() > 0 {
			return nil, ErrRecordRetired
		}
		return nil, ErrRecordNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var record model.RefreshRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: corrupt record: %v", ErrStoreUnavailable, err)
	}
	return &record, nil
}

func (r *RedisRepository) DeleteByTokenID(ctx context.Context, tokenID string, retireUntil time.Time) (bool, error) {
	existed, err := deleteRecordLua.Run(ctx, r.redis,
		[]string{r.recordKey(tokenID), r.retiredKey(tokenID)},
		ttlUntil(retireUntil).Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return existed > 0, nil
}

func (r *RedisRepository) Replace(ctx context.Context, oldTokenID string, record model.RefreshRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("ошибка преобразования в json: %w", err)
	}

	status, err := replaceRecordLua.Run(ctx, r.redis,
		[]string{r.recordKey(oldTokenID), r.recordKey(record.TokenID), r.retiredKey(oldTokenID)},
		data,
		ttlUntil(record.ExpiresAt).Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	switch status {
	case 0:
		return ErrRecordNotFound
	case -1:
		return ErrRecordExists
	}
	return nil
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// WaitReady pings with exponential backoff until Redis answers.
func (r *RedisRepository) WaitReady(ctx context.Context, attempts uint64) error {
	backoff := retry.WithCappedDuration(5*time.Second,
		retry.WithMaxRetries(attempts, retry.NewExponential(200*time.Millisecond)))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := r.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
