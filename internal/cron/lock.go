package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 30 * time.Minute

// Lock coordinates exclusive schedule runs across worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LeaseRenewer is implemented by locks whose hold expires. The service
// renews the lease every RefreshInterval while jobs run and stops the run
// when Refresh reports the lock was lost.
type LeaseRenewer interface {
	Refresh(ctx context.Context) (bool, error)
	RefreshInterval() time.Duration
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// RedisLock holds a schedule with SET NX and a TTL. The TTL bounds how long a
// crashed worker keeps the schedule; a live worker renews it.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	owner string
}

// NewRedisLock constructs a Redis-backed lock.
func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.setOwner(owner)
	}
	return ok, nil
}

// Refresh pushes the expiry out by a full TTL. It returns false once another
// worker owns the key or this instance holds nothing.
func (l *RedisLock) Refresh(ctx context.Context) (bool, error) {
	owner := l.currentOwner()
	if owner == "" {
		return false, nil
	}
	ok, err := l.client.CompareAndExpire(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("refresh %s: %w", l.key, err)
	}
	if !ok {
		l.setOwner("")
	}
	return ok, nil
}

func (l *RedisLock) RefreshInterval() time.Duration {
	return l.ttl / 3
}

func (l *RedisLock) currentOwner() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

func (l *RedisLock) setOwner(owner string) {
	l.mu.Lock()
	l.owner = owner
	l.mu.Unlock()
}

// Release frees the lock only if this instance still owns it. A lock that
// expired and was taken by another worker is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	owner := l.currentOwner()
	if owner == "" {
		return nil
	}
	l.setOwner("")
	if _, err := l.client.CompareAndDelete(ctx, l.key, owner); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
