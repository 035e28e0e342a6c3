package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	redisclient "github.com/angelmondragon/medfarma-backend/pkg/redis"
	"github.com/angelmondragon/medfarma-backend/pkg/security"
)

const (
	DefaultTTL  = 30 * 24 * time.Hour
	cartIDBytes = 24
)

var cartIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,64}$`)

// NewID returns a fresh opaque cart id for the cart cookie.
func NewID() (string, error) {
	return security.GenerateToken(cartIDBytes)
}

// ValidID reports whether raw looks like an id issued by NewID.
func ValidID(raw string) bool {
	return cartIDPattern.MatchString(raw)
}

type kv interface {
	Get(ctx context.Context, key string) (string, error)
	Update(ctx context.Context, key string, ttl time.Duration, fn func(current string, exists bool) (string, error)) error
	CartKey(cartID string) string
}

// Store persists cart snapshots in Redis under mf:cart:<id>.
type Store struct {
	kv  kv
	ttl time.Duration
}

func NewStore(kv kv, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: kv, ttl: ttl}
}

// Load returns the stored snapshot, or an empty cart when none exists.
func (s *Store) Load(ctx context.Context, cartID string) (Cart, error) {
	raw, err := s.kv.Get(ctx, s.kv.CartKey(cartID))
	if err != nil {
		if errors.Is(err, redisclient.Nil) {
			return Cart{Items: []Item{}}, nil
		}
		return Cart{}, err
	}
	return decodeSnapshot(raw)
}

// Update applies reduce to the stored snapshot under WATCH, so concurrent
// requests on the same cart cannot drop each other's lines. The TTL is
// refreshed on every write.
func (s *Store) Update(ctx context.Context, cartID string, reduce func(Cart) (Cart, error)) (Cart, error) {
	var next Cart
	err := s.kv.Update(ctx, s.kv.CartKey(cartID), s.ttl, func(raw string, exists bool) (string, error) {
		current := Cart{Items: []Item{}}
		if exists {
			var err error
			if current, err = decodeSnapshot(raw); err != nil {
				return "", err
			}
		}
		reduced, err := reduce(current)
		if err != nil {
			return "", err
		}
		payload, err := json.Marshal(reduced)
		if err != nil {
			return "", fmt.Errorf("encode cart snapshot: %w", err)
		}
		next = reduced
		return string(payload), nil
	})
	if err != nil {
		return Cart{}, err
	}
	return next, nil
}

func decodeSnapshot(raw string) (Cart, error) {
	var snapshot Cart
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return Cart{}, fmt.Errorf("decode cart snapshot: %w", err)
	}
	if snapshot.Items == nil {
		snapshot.Items = []Item{}
	}
	return snapshot, nil
}
