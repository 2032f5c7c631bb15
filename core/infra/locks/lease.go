// Package locks provides a Redis lease that lets one shrekd replica at a
// time run exclusive background work against shared storage.
package locks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 30 * time.Second

// Locker is what background jobs need from a lease.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Lease is an exclusive, expiring Redis lock owned by a random token.
type Lease struct {
	client redis.UniversalClient
	key    string
	owner  string
	ttl    time.Duration
}

// NewLease builds a lease on key. A non-positive ttl selects the default.
func NewLease(client redis.UniversalClient, key string, ttl time.Duration) (*Lease, error) {
	if client == nil {
		return nil, errors.New("lock store unavailable")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("lease key required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Lease{client: client, key: key, owner: uuid.NewString(), ttl: ttl}, nil
}

func (l *Lease) Key() string   { return l.key }
func (l *Lease) Owner() string { return l.owner }

// Acquire takes the lease if it is free or already ours, refreshing the TTL.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	res, err := acquireScript.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	return res == 1, nil
}

// Release drops the lease only if this owner still holds it.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}

var acquireScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false or current == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
