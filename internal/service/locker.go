package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CartLocker grants at most one holder per cart. Acquire fails with
// domain.ErrCheckoutInProgress while another holder is active.
type CartLocker interface {
	Acquire(ctx context.Context, ref domain.CartRef) (release func(context.Context) error, err error)
}

// releaseScript deletes the lock only if it still carries our token, so an
// expired holder cannot release a lock that was handed to someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares checkout locks across API instances
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

func checkoutLockKey(ref domain.CartRef) string {
	return "lock:checkout:" + ref.String()
}

func (l *RedisLocker) Acquire(ctx context.Context, ref domain.CartRef) (func(context.Context) error, error) {
	key := checkoutLockKey(ref)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return nil, domain.ErrCheckoutInProgress
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis release failed: %w", err)
		}
		return nil
	}, nil
}

// MemoryLocker holds checkout locks in process memory
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) Acquire(_ context.Context, ref domain.CartRef) (func(context.Context) error, error) {
	key := checkoutLockKey(ref)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, domain.ErrCheckoutInProgress
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
