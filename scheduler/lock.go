package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// Locker serializes work on one key. ok is false when another holder has it;
// the caller skips instead of waiting.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// localLocks is the in-process per-template lock.
type localLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLocalLocks() *localLocks {
	return &localLocks{locks: map[string]*sync.Mutex{}}
}

func (l *localLocks) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return nil, false, nil
	}
	return m.Unlock, true, nil
}

const redisLockPrefix = "billing:scheduler:"

// RedisLocker shares template locks between processes.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redislock.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	lock, err := l.client.Obtain(ctx, redisLockPrefix+key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	release := func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}
	return release, true, nil
}
