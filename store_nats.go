package replaycache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/goforj/replaycache/kvcore"
)

const (
	natsEnvelopeMarker = "kv-v1"
	natsMaxCASAttempts = 16
)

// NATSKeyValue captures the subset of nats.KeyValue used by the store.
type NATSKeyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Create(key string, value []byte) (uint64, error)
	Update(key string, value []byte, last uint64) (uint64, error)
	Purge(key string, opts ...nats.DeleteOpt) error
	ListKeys(opts ...nats.WatchOpt) (nats.KeyLister, error)
}

var errNATSUnavailable = errors.New("nats kv bucket unavailable")

// natsStore keeps every key in one JetStream bucket. Strings and lists share
// a JSON envelope; read-modify-write operations use revision compare-and-swap.
type natsStore struct {
	kv     NATSKeyValue
	prefix string
}

type natsEnvelope struct {
	Marker    string   `json:"m"`
	Kind      string   `json:"t"`
	Value     []byte   `json:"v,omitempty"`
	List      [][]byte `json:"l,omitempty"`
	ExpiresAt int64    `json:"ea,omitempty"`
}

func newNATSStore(kv NATSKeyValue, prefix string) Store {
	return &natsStore{kv: kv, prefix: prefix}
}

func (s *natsStore) Driver() Driver { return DriverNATS }

func (s *natsStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.kv == nil {
		return nil, false, errNATSUnavailable
	}
	env, _, ok, err := s.load(s.cacheKey(key))
	if err != nil || !ok {
		return nil, false, err
	}
	if env.Kind != entryKindString {
		return nil, false, kvcore.ErrWrongType
	}
	return cloneBytes(env.Value), true, nil
}

func (s *natsStore) Set(_ context.Context, key string, value []byte) error {
	return s.put(key, natsEnvelope{Kind: entryKindString, Value: cloneBytes(value)})
}

func (s *natsStore) SetEx(_ context.Context, key string, ttl time.Duration, value []byte) error {
	if ttl <= 0 {
		return kvcore.ErrInvalidTTL
	}
	return s.put(key, natsEnvelope{
		Kind:      entryKindString,
		Value:     cloneBytes(value),
		ExpiresAt: time.Now().Add(ttl).UnixMilli(),
	})
}

func (s *natsStore) put(key string, env natsEnvelope) error {
	if s.kv == nil {
		return errNATSUnavailable
	}
	body, err := encodeNATSEnvelope(env)
	if err != nil {
		return err
	}
	_, err = s.kv.Put(s.cacheKey(key), body)
	return err
}

func (s *natsStore) Incr(_ context.Context, key string) (int64, error) {
	var next int64
	err := s.update(key, func(env natsEnvelope, exists bool) (natsEnvelope, error) {
		current := int64(0)
		if exists {
			if env.Kind != entryKindString {
				return env, kvcore.ErrWrongType
			}
			n, err := strconv.ParseInt(string(env.Value), 10, 64)
			if err != nil {
				return env, kvcore.ErrNotInteger
			}
			current = n
		} else {
			env = natsEnvelope{Kind: entryKindString}
		}
		next = current + 1
		env.Value = []byte(strconv.FormatInt(next, 10))
		return env, nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *natsStore) RPush(_ context.Context, key string, value []byte) (int64, error) {
	var length int64
	err := s.update(key, func(env natsEnvelope, exists bool) (natsEnvelope, error) {
		if exists && env.Kind != entryKindList {
			return env, kvcore.ErrWrongType
		}
		if !exists {
			env = natsEnvelope{Kind: entryKindList}
		}
		env.List = append(env.List, cloneBytes(value))
		length = int64(len(env.List))
		return env, nil
	})
	if err != nil {
		return 0, err
	}
	return length, nil
}

func (s *natsStore) LRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	if s.kv == nil {
		return nil, errNATSUnavailable
	}
	env, _, ok, err := s.load(s.cacheKey(key))
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][]byte{}, nil
	}
	if env.Kind != entryKindList {
		return nil, kvcore.ErrWrongType
	}
	lo, hi, ok := kvcore.NormalizeRange(int64(len(env.List)), start, stop)
	if !ok {
		return [][]byte{}, nil
	}
	out := make([][]byte, 0, hi-lo)
	for _, item := range env.List[lo:hi] {
		out = append(out, cloneBytes(item))
	}
	return out, nil
}

// Flush purges every key under the configured prefix.
func (s *natsStore) Flush(_ context.Context) error {
	if s.kv == nil {
		return errNATSUnavailable
	}
	lister, err := s.kv.ListKeys(nats.IgnoreDeletes())
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil
		}
		return err
	}
	defer func() { _ = lister.Stop() }()

	scopePrefix := s.scopePrefix()
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, scopePrefix) {
			continue
		}
		if err := s.kv.Purge(key); err != nil && !isNATSMiss(err) {
			return err
		}
	}
	for err := range lister.Error() {
		if err != nil {
			return err
		}
	}
	return nil
}

// update applies fn to the current envelope of key and writes the result
// with optimistic concurrency, retrying when another writer wins the race.
func (s *natsStore) update(key string, fn func(env natsEnvelope, exists bool) (natsEnvelope, error)) error {
	if s.kv == nil {
		return errNATSUnavailable
	}
	cacheKey := s.cacheKey(key)
	for attempt := 0; attempt < natsMaxCASAttempts; attempt++ {
		env, revision, ok, err := s.load(cacheKey)
		if err != nil {
			return err
		}
		next, err := fn(env, ok)
		if err != nil {
			return err
		}
		body, err := encodeNATSEnvelope(next)
		if err != nil {
			return err
		}
		if revision == 0 {
			_, err = s.kv.Create(cacheKey, body)
		} else {
			_, err = s.kv.Update(cacheKey, body, revision)
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, nats.ErrKeyExists) || isNATSMiss(err) {
			continue
		}
		return err
	}
	return errors.New("nats kv update exceeded retry limit")
}

// load returns the live envelope of cacheKey and the revision to compare
// against. An expired entry is reported absent with its revision kept, so the
// next write replaces it in place.
func (s *natsStore) load(cacheKey string) (natsEnvelope, uint64, bool, error) {
	entry, err := s.kv.Get(cacheKey)
	if isNATSMiss(err) {
		return natsEnvelope{}, 0, false, nil
	}
	if err != nil {
		return natsEnvelope{}, 0, false, err
	}
	if entry.Operation() == nats.KeyValueDelete || entry.Operation() == nats.KeyValuePurge {
		return natsEnvelope{}, entry.Revision(), false, nil
	}
	env, err := decodeNATSEnvelope(entry.Value())
	if err != nil {
		return natsEnvelope{}, 0, false, fmt.Errorf("nats key %q: %w", entry.Key(), err)
	}
	if env.ExpiresAt > 0 && time.Now().UnixMilli() > env.ExpiresAt {
		return natsEnvelope{}, entry.Revision(), false, nil
	}
	return env, entry.Revision(), true, nil
}

func (s *natsStore) cacheKey(key string) string {
	return s.scopePrefix() + encodeNATSKeyPart(key)
}

func (s *natsStore) scopePrefix() string {
	return "p." + encodeNATSKeyPart(s.prefix) + ".k."
}

func encodeNATSEnvelope(env natsEnvelope) ([]byte, error) {
	env.Marker = natsEnvelopeMarker
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal nats kv envelope: %w", err)
	}
	return body, nil
}

func decodeNATSEnvelope(body []byte) (natsEnvelope, error) {
	var env natsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return natsEnvelope{}, fmt.Errorf("decode nats kv envelope: %w", err)
	}
	if env.Marker != natsEnvelopeMarker {
		return natsEnvelope{}, fmt.Errorf("unexpected nats kv envelope marker %q", env.Marker)
	}
	return env, nil
}

func isNATSMiss(err error) bool {
	return errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted)
}

// encodeNATSKeyPart maps arbitrary strings onto the NATS key alphabet.
func encodeNATSKeyPart(part string) string {
	if part == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(part))
}
