package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/angelmondragon/medfarma-backend/pkg/redis"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redisclient.Nil
	}
	return val, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *mockStore) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

func newTestManager(store *mockStore) *Manager {
	return &Manager{store: store, keyer: store, ttl: time.Hour, now: time.Now}
}

func TestManagerGenerateAndRotate(t *testing.T) {
	store := newMockStore()
	manager := newTestManager(store)
	ctx := context.Background()
	principal := uuid.New()

	token, err := manager.Generate(ctx, "access-123", principal)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	stored := store.data["sess:access-123"]
	if strings.Contains(stored, token) {
		t.Fatalf("raw refresh token must not be stored")
	}
	if store.ttls["sess:access-123"] != time.Hour {
		t.Fatalf("unexpected ttl %v", store.ttls["sess:access-123"])
	}

	if _, _, _, err := manager.Rotate(ctx, "access-123", "wrong"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid refresh token error, got %v", err)
	}

	newAccessID, newToken, owner, err := manager.Rotate(ctx, "access-123", token)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if owner != principal {
		t.Fatalf("expected owner %s got %s", principal, owner)
	}
	if _, exists := store.data["sess:access-123"]; exists {
		t.Fatalf("old access key left behind")
	}
	if newToken == token || newAccessID == "access-123" {
		t.Fatalf("rotation must issue fresh identifiers")
	}

	if _, _, _, err := manager.Rotate(ctx, "access-123", token); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("replaying a rotated token must fail, got %v", err)
	}
}

func TestManagerHasSessionAndRevoke(t *testing.T) {
	store := newMockStore()
	manager := newTestManager(store)
	ctx := context.Background()

	if _, err := manager.Generate(ctx, "jti-1", uuid.New()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	ok, err := manager.HasSession(ctx, "jti-1")
	if err != nil || !ok {
		t.Fatalf("expected live session, got %v err=%v", ok, err)
	}
	if err := manager.Revoke(ctx, "jti-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err = manager.HasSession(ctx, "jti-1")
	if err != nil || ok {
		t.Fatalf("expected revoked session, got %v err=%v", ok, err)
	}
}

func TestManagerRejectsCorruptRecord(t *testing.T) {
	store := newMockStore()
	manager := newTestManager(store)
	store.data["sess:jti-x"] = "not-json"

	if _, _, _, err := manager.Rotate(context.Background(), "jti-x", "anything"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid refresh token, got %v", err)
	}
}

func TestGenerateValidation(t *testing.T) {
	manager := newTestManager(newMockStore())
	if _, err := manager.Generate(context.Background(), "", uuid.New()); err == nil {
		t.Fatal("expected access id error")
	}
	if _, err := manager.Generate(context.Background(), "jti", uuid.Nil); err == nil {
		t.Fatal("expected principal error")
	}
}
