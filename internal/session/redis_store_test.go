package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"projectgate/api/internal/store"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })
	return sessions, mr
}

func testUser(id string) store.User {
	return store.User{
		ID:          id,
		DisplayName: "Priya Sharma",
		UserType:    "Student",
		Department:  "Computer Science",
	}
}

func TestSaveAndLookupSession(t *testing.T) {
	sessions, _ := setupTestRedis(t)
	ctx := context.Background()

	expiresAt := time.Now().Add(24 * time.Hour)
	if err := sessions.SaveSession(ctx, "hash-1", testUser("usr_1"), expiresAt); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	user, err := sessions.LookupSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupSession failed: %v", err)
	}
	if user.ID != "usr_1" || user.UserType != "Student" || user.Department != "Computer Science" {
		t.Errorf("session lost user fields: %+v", user)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	sessions, mr := setupTestRedis(t)
	ctx := context.Background()

	expiresAt := time.Now().Add(time.Millisecond)
	if err := sessions.SaveSession(ctx, "hash-expiring", testUser("usr_2"), expiresAt); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	mr.FastForward(2 * time.Millisecond)

	if _, err := sessions.LookupSession(ctx, "hash-expiring"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestLookupUnknownSession(t *testing.T) {
	sessions, _ := setupTestRedis(t)
	if _, err := sessions.LookupSession(context.Background(), "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRevokeSession(t *testing.T) {
	sessions, _ := setupTestRedis(t)
	ctx := context.Background()

	expiresAt := time.Now().Add(24 * time.Hour)
	if err := sessions.SaveSession(ctx, "hash-revoke", testUser("usr_3"), expiresAt); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if err := sessions.RevokeSession(ctx, "hash-revoke"); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if _, err := sessions.LookupSession(ctx, "hash-revoke"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after revoke, got %v", err)
	}

	// Revoking again is a no-op.
	if err := sessions.RevokeSession(ctx, "hash-revoke"); err != nil {
		t.Errorf("revoking a missing session should not error: %v", err)
	}
}

func TestSessionIsolation(t *testing.T) {
	sessions, _ := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := sessions.SaveSession(ctx, "hash-a", testUser("usr_a"), expiresAt); err != nil {
		t.Fatalf("SaveSession a: %v", err)
	}
	if err := sessions.SaveSession(ctx, "hash-b", testUser("usr_b"), expiresAt); err != nil {
		t.Fatalf("SaveSession b: %v", err)
	}

	if err := sessions.RevokeSession(ctx, "hash-a"); err != nil {
		t.Fatalf("RevokeSession a: %v", err)
	}
	if _, err := sessions.LookupSession(ctx, "hash-a"); err == nil {
		t.Error("expected revoked session a to be gone")
	}
	user, err := sessions.LookupSession(ctx, "hash-b")
	if err != nil {
		t.Fatalf("session b should survive: %v", err)
	}
	if user.ID != "usr_b" {
		t.Errorf("expected usr_b, got %s", user.ID)
	}
}
