package replaycache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goforj/replaycache/kvcore"
)

// RedisClient captures the subset of redis.Client used by the store.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	FlushDB(ctx context.Context) *redis.StatusCmd
}

var errRedisUnavailable = errors.New("redis kv client unavailable")

type redisStore struct {
	client RedisClient
	base   kvcore.BaseConfig
}

func newRedisStore(client RedisClient, prefix string) Store {
	return &redisStore{
		client: client,
		base:   kvcore.BaseConfig{Prefix: prefix},
	}
}

func (s *redisStore) Driver() Driver {
	return DriverRedis
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.client == nil {
		return nil, false, errRedisUnavailable
	}
	value, err := s.client.Get(ctx, s.base.Key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, mapRedisErr(err)
	}
	return []byte(value), true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte) error {
	if s.client == nil {
		return errRedisUnavailable
	}
	return mapRedisErr(s.client.Set(ctx, s.base.Key(key), value, 0).Err())
}

func (s *redisStore) SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	if s.client == nil {
		return errRedisUnavailable
	}
	if ttl <= 0 {
		return kvcore.ErrInvalidTTL
	}
	return mapRedisErr(s.client.SetEx(ctx, s.base.Key(key), value, ttl).Err())
}

func (s *redisStore) Incr(ctx context.Context, key string) (int64, error) {
	if s.client == nil {
		return 0, errRedisUnavailable
	}
	value, err := s.client.Incr(ctx, s.base.Key(key)).Result()
	if err != nil {
		return 0, mapRedisErr(err)
	}
	return value, nil
}

func (s *redisStore) RPush(ctx context.Context, key string, value []byte) (int64, error) {
	if s.client == nil {
		return 0, errRedisUnavailable
	}
	n, err := s.client.RPush(ctx, s.base.Key(key), value).Result()
	if err != nil {
		return 0, mapRedisErr(err)
	}
	return n, nil
}

func (s *redisStore) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	if s.client == nil {
		return nil, errRedisUnavailable
	}
	values, err := s.client.LRange(ctx, s.base.Key(key), start, stop).Result()
	if err != nil {
		return nil, mapRedisErr(err)
	}
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out, nil
}

// Flush clears the selected database when no prefix is configured, and only
// the prefixed keys otherwise.
func (s *redisStore) Flush(ctx context.Context) error {
	if s.client == nil {
		return errRedisUnavailable
	}
	if s.base.Prefix == "" {
		return s.client.FlushDB(ctx).Err()
	}
	pattern := escapeRedisGlob(s.base.Prefix) + ":*"
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// escapeRedisGlob quotes the characters MATCH treats as wildcards.
func escapeRedisGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// mapRedisErr translates server type errors into kvcore sentinels while
// keeping the original message.
func mapRedisErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "WRONGTYPE"):
		return fmt.Errorf("%w: %s", kvcore.ErrWrongType, msg)
	case strings.Contains(msg, "not an integer"):
		return fmt.Errorf("%w: %s", kvcore.ErrNotInteger, msg)
	case strings.Contains(msg, "invalid expire time"):
		return fmt.Errorf("%w: %s", kvcore.ErrInvalidTTL, msg)
	default:
		return err
	}
}
