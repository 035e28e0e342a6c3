package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock guards a single job run across cron-worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Locker hands out the lock for one job. hold is how long the lock may
// stay claimed if its owner dies mid-run.
type Locker interface {
	For(job string, hold time.Duration) (Lock, error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// JobLocks keys one Redis lock per job under a shared prefix, so a slow
// retention sweep never blocks the low stock scan.
type JobLocks struct {
	store  lockStore
	prefix string
}

// NewJobLocks builds per-job locks rooted at prefix, for example
// "mf:lock:cron:prod".
func NewJobLocks(store lockStore, prefix string) (*JobLocks, error) {
	if store == nil {
		return nil, errors.New("redis client required for job locks")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, errors.New("lock prefix is required")
	}
	return &JobLocks{store: store, prefix: prefix}, nil
}

// For returns the lock of job.
func (l *JobLocks) For(job string, hold time.Duration) (Lock, error) {
	job = strings.TrimSpace(job)
	if job == "" {
		return nil, errors.New("job name is required")
	}
	if hold <= 0 {
		return nil, fmt.Errorf("lock hold for %s must be positive", job)
	}
	return &redisLock{store: l.store, key: l.prefix + ":" + job, hold: hold}, nil
}

type redisLock struct {
	store lockStore
	key   string
	hold  time.Duration
	token string
}

func (l *redisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.hold)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release drops the lock when this holder still owns it. A lock that
// expired and was claimed by another replica is left alone.
func (l *redisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	current, err := l.store.Get(ctx, l.key)
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return fmt.Errorf("read %s: %w", l.key, err)
	case current != token:
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("drop %s: %w", l.key, err)
	}
	return nil
}
