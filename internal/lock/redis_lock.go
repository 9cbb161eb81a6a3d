// Package lock provides a leased cluster-wide mutual exclusion primitive.
// A crashed holder cannot deadlock future runs: the lease expires by TTL.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"mlm_shop/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Lease is an acquired lock. Only its holder can release it.
type Lease struct {
	Key   string
	Token string
	TTL   time.Duration
}

// Locker acquires and releases leases. Acquire returns
// domain.ErrLeaseBusy when another instance holds the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
	Release(ctx context.Context, lease *Lease) error
}

// releaseScript deletes the key only when the stored token matches, so a
// lease that expired and was re-acquired elsewhere is never stolen back.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker implements Locker on SET NX PX.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := newToken()
	ok, err := l.client.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrLeaseBusy
	}
	return &Lease{Key: key, Token: token, TTL: ttl}, nil
}

func (l *RedisLocker) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return errors.New("nil lease")
	}
	return l.client.Eval(ctx, releaseScript, []string{"lock:" + lease.Key}, lease.Token).Err()
}

func newToken() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
