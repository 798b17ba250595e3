package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemorySessionStoreLifecycle(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemorySessionStore(0, clock.Now)
	defer store.Close()
	ctx := context.Background()

	sess := &RefreshSession{ID: "s1", UserID: "u1", ExpiresAt: clock.Now().Add(time.Hour)}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, sess); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := store.Consume(ctx, "s1")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got.ConsumedAt == nil || got.UserID != "u1" {
		t.Fatalf("unexpected session %+v", got)
	}
	if _, err := store.Consume(ctx, "s1"); !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("expected ErrReplayDetected, got %v", err)
	}
	if _, err := store.Consume(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemorySessionStoreRevokeAndExpiry(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemorySessionStore(0, clock.Now)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := store.Create(ctx, &RefreshSession{ID: id, UserID: "u1", ExpiresAt: clock.Now().Add(time.Hour)}); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	if err := store.Create(ctx, &RefreshSession{ID: "c", UserID: "u2", ExpiresAt: clock.Now().Add(time.Minute)}); err != nil {
		t.Fatalf("Create c: %v", err)
	}

	if err := store.RevokeAllForUser(ctx, "u1"); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	for _, id := range []string{"a", "b"} {
		if _, err := store.Consume(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound after revoke, got %v", id, err)
		}
	}

	clock.Advance(2 * time.Minute)
	if _, err := store.Consume(ctx, "c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired session, got %v", err)
	}
	store.CleanupExpired()
	if err := store.Revoke(ctx, "c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session to be pruned, got %v", err)
	}
}
