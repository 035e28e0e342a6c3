package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	claimed map[string]bool
	err     error
	lastTTL time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{claimed: map[string]bool{}}
}

func (f *fakeStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.lastTTL = ttl
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "mf:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.claimed, key)
	}
	return nil
}

func TestClaimOnlyOnce(t *testing.T) {
	store := newFakeStore()
	guard, err := NewGuard(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	eventID := uuid.New()

	first, err := guard.Claim(context.Background(), "automation", eventID)
	if err != nil || !first {
		t.Fatalf("expected first claim to win, got %v err=%v", first, err)
	}
	second, err := guard.Claim(context.Background(), "automation", eventID)
	if err != nil || second {
		t.Fatalf("expected duplicate claim to lose, got %v err=%v", second, err)
	}
	if !store.claimed["mf:idempotency:evt:automation:"+eventID.String()] {
		t.Fatalf("unexpected keys %v", store.claimed)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl %v", store.lastTTL)
	}

	other, _ := guard.Claim(context.Background(), "analytics", eventID)
	if !other {
		t.Fatal("claims must be scoped per consumer")
	}
}

func TestReleaseAllowsReprocessing(t *testing.T) {
	guard, _ := NewGuard(newFakeStore(), time.Hour)
	eventID := uuid.New()

	_, _ = guard.Claim(context.Background(), "automation", eventID)
	if err := guard.Release(context.Background(), "automation", eventID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, _ := guard.Claim(context.Background(), "automation", eventID)
	if !again {
		t.Fatal("expected claim after release")
	}
}

func TestClaimValidation(t *testing.T) {
	guard, _ := NewGuard(newFakeStore(), time.Hour)
	if _, err := guard.Claim(context.Background(), "", uuid.New()); err == nil {
		t.Fatal("expected consumer error")
	}
	if _, err := guard.Claim(context.Background(), "automation", uuid.Nil); err == nil {
		t.Fatal("expected event id error")
	}

	failing, _ := NewGuard(&fakeStore{err: errors.New("down")}, time.Hour)
	if _, err := failing.Claim(context.Background(), "automation", uuid.New()); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := NewGuard(nil, time.Hour); err == nil {
		t.Fatal("expected nil store error")
	}
}
