package replaycache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// stubRedisClient is an in-memory RedisClient used for unit tests.
type stubRedisClient struct {
	store map[string]string
	lists map[string][]string
	ttl   map[string]time.Time

	getErr    error
	setErr    error
	incrErr   error
	rpushErr  error
	lrangeErr error
	scanErr   error
	delErr    error
	flushErr  error

	flushDBCalls int
	scanPatterns []string
}

var errStubWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

func newStubRedisClient() *stubRedisClient {
	return &stubRedisClient{
		store: make(map[string]string),
		lists: make(map[string][]string),
		ttl:   make(map[string]time.Time),
	}
}

func (c *stubRedisClient) expireIfNeeded(key string) {
	if deadline, ok := c.ttl[key]; ok && time.Now().After(deadline) {
		delete(c.ttl, key)
		delete(c.store, key)
	}
}

func (c *stubRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if c.getErr != nil {
		cmd.SetErr(c.getErr)
		return cmd
	}
	c.expireIfNeeded(key)
	if _, ok := c.lists[key]; ok {
		cmd.SetErr(errStubWrongType)
		return cmd
	}
	if val, ok := c.store[key]; ok {
		cmd.SetVal(val)
		return cmd
	}
	cmd.SetErr(redis.Nil)
	return cmd
}

func (c *stubRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if c.setErr != nil {
		cmd.SetErr(c.setErr)
		return cmd
	}
	bytes, _ := value.([]byte)
	delete(c.lists, key)
	c.store[key] = string(bytes)
	if expiration > 0 {
		c.ttl[key] = time.Now().Add(expiration)
	} else {
		delete(c.ttl, key)
	}
	cmd.SetVal("OK")
	return cmd
}

func (c *stubRedisClient) SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	return c.Set(ctx, key, value, expiration)
}

func (c *stubRedisClient) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if c.incrErr != nil {
		cmd.SetErr(c.incrErr)
		return cmd
	}
	c.expireIfNeeded(key)
	if _, ok := c.lists[key]; ok {
		cmd.SetErr(errStubWrongType)
		return cmd
	}
	current := int64(0)
	if existing, ok := c.store[key]; ok {
		parsed, err := strconv.ParseInt(existing, 10, 64)
		if err != nil {
			cmd.SetErr(errors.New("ERR value is not an integer or out of range"))
			return cmd
		}
		current = parsed
	}
	current++
	c.store[key] = strconv.FormatInt(current, 10)
	cmd.SetVal(current)
	return cmd
}

func (c *stubRedisClient) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if c.rpushErr != nil {
		cmd.SetErr(c.rpushErr)
		return cmd
	}
	c.expireIfNeeded(key)
	if _, ok := c.store[key]; ok {
		cmd.SetErr(errStubWrongType)
		return cmd
	}
	for _, v := range values {
		bytes, _ := v.([]byte)
		c.lists[key] = append(c.lists[key], string(bytes))
	}
	cmd.SetVal(int64(len(c.lists[key])))
	return cmd
}

func (c *stubRedisClient) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	if c.lrangeErr != nil {
		cmd.SetErr(c.lrangeErr)
		return cmd
	}
	c.expireIfNeeded(key)
	if _, ok := c.store[key]; ok {
		cmd.SetErr(errStubWrongType)
		return cmd
	}
	list := c.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		cmd.SetVal([]string{})
		return cmd
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	cmd.SetVal(out)
	return cmd
}

func (c *stubRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if c.delErr != nil {
		cmd.SetErr(c.delErr)
		return cmd
	}
	var removed int64
	for _, key := range keys {
		c.expireIfNeeded(key)
		if _, ok := c.store[key]; ok {
			delete(c.store, key)
			delete(c.ttl, key)
			removed++
		}
		if _, ok := c.lists[key]; ok {
			delete(c.lists, key)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func (c *stubRedisClient) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	cmd := redis.NewScanCmd(ctx, nil)
	if c.scanErr != nil {
		cmd.SetErr(c.scanErr)
		return cmd
	}
	c.scanPatterns = append(c.scanPatterns, match)
	var keys []string
	for key := range c.store {
		if globMatch(match, key) {
			keys = append(keys, key)
		}
	}
	for key := range c.lists {
		if globMatch(match, key) {
			keys = append(keys, key)
		}
	}
	cmd.SetVal(keys, 0)
	return cmd
}

func (c *stubRedisClient) FlushDB(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	c.flushDBCalls++
	if c.flushErr != nil {
		cmd.SetErr(c.flushErr)
		return cmd
	}
	c.store = make(map[string]string)
	c.lists = make(map[string][]string)
	c.ttl = make(map[string]time.Time)
	cmd.SetVal("OK")
	return cmd
}

// globMatch implements the Redis MATCH syntax: *, ?, [set] and backslash escapes.
func globMatch(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for i := 0; i <= len(s); i++ {
				if globMatch(pattern[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if s == "" {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		case '[':
			end := strings.IndexByte(pattern, ']')
			if end < 0 || s == "" {
				return false
			}
			if !strings.ContainsRune(pattern[1:end], rune(s[0])) {
				return false
			}
			pattern, s = pattern[end+1:], s[1:]
		case '\\':
			if len(pattern) < 2 || s == "" || pattern[1] != s[0] {
				return false
			}
			pattern, s = pattern[2:], s[1:]
		default:
			if s == "" || pattern[0] != s[0] {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		}
	}
	return s == ""
}
