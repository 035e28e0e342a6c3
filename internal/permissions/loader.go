package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	redisclient "github.com/angelmondragon/medfarma-backend/pkg/redis"
)

// Assignment is one explicit permission row for a user.
type Assignment struct {
	Code    string `json:"code"`
	Granted bool   `json:"granted"`
}

type assignmentSource interface {
	Assignments(ctx context.Context, userID uuid.UUID) ([]Assignment, error)
}

// Loader reads the explicit capability rows for a user.
type Loader struct {
	source assignmentSource
}

func NewLoader(source assignmentSource) *Loader {
	return &Loader{source: source}
}

// Load returns the granted codes for userID.
func (l *Loader) Load(ctx context.Context, userID uuid.UUID) ([]string, error) {
	granted, _, err := l.split(ctx, userID)
	return granted, err
}

// LoadSplit returns granted and explicitly denied codes.
func (l *Loader) LoadSplit(ctx context.Context, userID uuid.UUID) ([]string, []string, error) {
	return l.split(ctx, userID)
}

func (l *Loader) split(ctx context.Context, userID uuid.UUID) ([]string, []string, error) {
	rows, err := l.source.Assignments(ctx, userID)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, nil, err
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load permissions")
	}
	granted := make([]string, 0, len(rows))
	var denied []string
	for _, row := range rows {
		if row.Granted {
			granted = append(granted, row.Code)
		} else {
			denied = append(denied, row.Code)
		}
	}
	return granted, denied, nil
}

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	PermissionCacheKey(userID string) string
}

// CachedLoader keeps each user's assignment rows in Redis for ttl.
// Cache faults fall through to the source.
type CachedLoader struct {
	next  assignmentSource
	cache cacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

func NewCachedLoader(next assignmentSource, cache cacheStore, ttl time.Duration, logg *logger.Logger) *CachedLoader {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedLoader{next: next, cache: cache, ttl: ttl, logg: logg}
}

func (c *CachedLoader) Assignments(ctx context.Context, userID uuid.UUID) ([]Assignment, error) {
	key := c.cache.PermissionCacheKey(userID.String())

	raw, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var rows []Assignment
		if jsonErr := json.Unmarshal([]byte(raw), &rows); jsonErr == nil {
			return rows, nil
		}
	case !errors.Is(err, redisclient.Nil):
		c.warn(ctx, "permissions.cache_read_failed", err)
	}

	rows, err := c.next.Assignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []Assignment{}
	}
	payload, err := json.Marshal(rows)
	if err == nil {
		if err := c.cache.Set(ctx, key, payload, c.ttl); err != nil {
			c.warn(ctx, "permissions.cache_write_failed", err)
		}
	}
	return rows, nil
}

// Invalidate drops the cached rows for userID.
func (c *CachedLoader) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return c.cache.Del(ctx, c.cache.PermissionCacheKey(userID.String()))
}

func (c *CachedLoader) warn(ctx context.Context, msg string, err error) {
	if c.logg == nil {
		return
	}
	c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), msg)
}
