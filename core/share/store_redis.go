package share

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces record keys when no prefix is configured.
const DefaultPrefix = "shrekd"

const (
	maxTakeRetries = 8
	minTTL         = time.Millisecond
)

// RedisStore implements Store on a Redis client shared with the rest of the
// process.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore wraps client, namespacing keys with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

// Prefix is the key namespace, without the trailing colon.
func (s *RedisStore) Prefix() string { return s.prefix }

func (s *RedisStore) key(slug string) string { return Key(s.prefix, slug) }

// ttlFor converts an absolute expiry to a relative TTL. Records without an
// expiry get 0 (no TTL); past expiries are clamped so the key still expires.
func (s *RedisStore) ttlFor(rec *Record) time.Duration {
	if rec.Expiry == nil {
		return 0
	}
	ttl := rec.Expiry.Sub(s.now())
	if ttl < minTTL {
		ttl = minTTL
	}
	return ttl
}

func (s *RedisStore) Create(ctx context.Context, rec *Record) error {
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(rec.Slug), data, s.ttlFor(rec)).Result()
	if err != nil {
		return &StorageError{Op: "create", Err: err}
	}
	if !ok {
		return ErrSlugTaken
	}
	return nil
}

func (s *RedisStore) Persist(ctx context.Context, rec *Record) error {
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(rec.Slug), data, s.ttlFor(rec)).Err(); err != nil {
		return &StorageError{Op: "persist", Err: err}
	}
	return nil
}

func (s *RedisStore) Fetch(ctx context.Context, slug string) (*Record, error) {
	data, err := s.client.Get(ctx, s.key(slug)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "fetch", Err: err}
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		return nil, err
	}
	if rec.ExpiredAt(s.now()) {
		return nil, nil
	}
	return rec, nil
}

func (s *RedisStore) Exists(ctx context.Context, slug string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(slug)).Result()
	if err != nil {
		return false, &StorageError{Op: "exists", Err: err}
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, slug string) error {
	if err := s.client.Del(ctx, s.key(slug)).Err(); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	return nil
}

// Take reads, decrements and writes back (or deletes) the record inside a
// WATCH/MULTI transaction, retrying when another client touched the key.
func (s *RedisStore) Take(ctx context.Context, slug string) (*Record, error) {
	key := s.key(slug)
	var taken *Record
	txf := func(tx *redis.Tx) error {
		taken = nil
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		rec, err := DecodeRecord(data)
		if err != nil {
			return err
		}
		if rec.ExpiredAt(s.now()) {
			return nil
		}
		next, exhausted := afterAccess(rec)
		if next == nil && !exhausted {
			taken = rec
			return nil
		}
		var encoded []byte
		if next != nil {
			if encoded, err = EncodeRecord(next); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if exhausted {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, encoded, s.ttlFor(next))
			}
			return nil
		})
		if err != nil {
			return err
		}
		taken = rec
		return nil
	}

	for i := 0; i < maxTakeRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return taken, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var serr *SerializationError
		if errors.As(err, &serr) {
			return nil, err
		}
		return nil, &StorageError{Op: "take", Err: err}
	}
	return nil, &StorageError{Op: "take", Err: redis.TxFailedErr}
}
