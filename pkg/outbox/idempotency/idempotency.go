// Package idempotency guards at-least-once consumers against processing an event twice.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/pkg/redis"
)

// Guard claims event IDs per consumer with Redis SETNX.
// Keys look like mf:idempotency:evt:<consumer>:<event_id>.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Claim returns true when this is the first delivery the consumer sees for eventID.
func (g *Guard) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
}

// Release drops the claim so a redelivery is processed again.
func (g *Guard) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(fmt.Sprintf("evt:%s", consumer), eventID.String()), nil
}
