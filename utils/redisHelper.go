package utils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// KeyLocker serializes work on a single key (e.g. one company's balance for one credit type).
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// CreditBalanceLockKey is the lock key guarding the balance of (userId, creditType).
func CreditBalanceLockKey(userId, creditType string) string {
	return fmt.Sprintf("lock:credit:%s:%s", userId, creditType)
}

// RedisKeyLocker holds a redislock lease per key so that every API instance
// sharing the Redis server sees the same critical section.
type RedisKeyLocker struct {
	locker *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

func NewRedisKeyLocker(rdb *redis.Client, ttl time.Duration) *RedisKeyLocker {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisKeyLocker{
		locker: redislock.New(rdb),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), int(ttl/(50*time.Millisecond))),
	}
}

func (l *RedisKeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := l.locker.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("could not obtain lock %s: %w", key, err)
	}
	if err != nil {
		return nil, err
	}
	stopRefresh := keepAlive(func(ctx context.Context) error {
		return lock.Refresh(ctx, l.ttl, nil)
	}, l.ttl/3)
	return func() {
		stopRefresh()
		// A fresh context: the caller's may already be cancelled and the lease must still go.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}, nil
}

// keepAlive calls refresh every interval until stop is called or a refresh fails, so a lease
// outlives a critical section that runs longer than its TTL.
func keepAlive(refresh func(ctx context.Context) error, every time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refreshCtx, refreshCancel := context.WithTimeout(ctx, every)
				err := refresh(refreshCtx)
				refreshCancel()
				if err != nil {
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// LocalKeyLocker is the single-process fallback used when Redis is not configured.
type LocalKeyLocker struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	ch   chan struct{}
	refs int
}

func NewLocalKeyLocker() *LocalKeyLocker {
	return &LocalKeyLocker{locks: make(map[string]*refMutex)}
}

func (l *LocalKeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &refMutex{ch: make(chan struct{}, 1)}
		l.locks[key] = m
	}
	m.refs++
	l.mu.Unlock()

	select {
	case m.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, m)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-m.ch
			l.release(key, m)
		})
	}, nil
}

func (l *LocalKeyLocker) release(key string, m *refMutex) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(l.locks, key)
	}
}
