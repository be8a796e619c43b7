package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRefreshSessionLifecycle(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "hash-a", "u_robin", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("writepad:refresh:hash-a") {
		t.Fatalf("expected namespaced key, have %v", mr.Keys())
	}
	if ok, _ := mr.SIsMember("writepad:user-refresh:u_robin", "hash-a"); !ok {
		t.Fatalf("expected hash indexed under its user")
	}

	user, err := store.LookupRefreshSession(ctx, "hash-a")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if user.ID != "u_robin" {
		t.Fatalf("expected u_robin, got %q", user.ID)
	}

	// Rotation revokes the old hash and saves a new one.
	if err := store.RevokeRefreshSession(ctx, "hash-a"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, "hash-a"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after revoke, got %v", err)
	}
	if err := store.RevokeRefreshSession(ctx, "never-issued"); err != nil {
		t.Fatalf("revoking an unknown hash should be a no-op: %v", err)
	}
}

func TestRefreshSessionExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "short", "u_robin", time.Now().Add(2*time.Second)); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(3 * time.Second)
	if _, err := store.LookupRefreshSession(ctx, "short"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestRevokeUserSessionsLeavesOtherUsers(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	for _, s := range []struct{ hash, user string }{
		{"laptop", "u_robin"},
		{"phone", "u_robin"},
		{"other", "u_sam"},
	} {
		if err := store.SaveRefreshSession(ctx, s.hash, s.user, exp); err != nil {
			t.Fatalf("save %s: %v", s.hash, err)
		}
	}

	if err := store.RevokeUserSessions(ctx, "u_robin"); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	for _, hash := range []string{"laptop", "phone"} {
		if _, err := store.LookupRefreshSession(ctx, hash); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("expected %s revoked, got %v", hash, err)
		}
	}
	if user, err := store.LookupRefreshSession(ctx, "other"); err != nil || user.ID != "u_sam" {
		t.Fatalf("expected u_sam untouched, got %+v err=%v", user, err)
	}
}

func TestAccessTokenRevocation(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.RevokeAccessToken(ctx, "jti-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("revoke access: %v", err)
	}
	revoked, err := store.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected jti-1 revoked, got %v err=%v", revoked, err)
	}

	// Already-expired tokens are not stored.
	if err := store.RevokeAccessToken(ctx, "jti-old", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("revoke expired: %v", err)
	}
	if mr.Exists("writepad:revoked:jti-old") {
		t.Fatalf("expected no key for an expired token")
	}

	mr.FastForward(2 * time.Minute)
	if revoked, _ := store.IsAccessTokenRevoked(ctx, "jti-1"); revoked {
		t.Fatalf("expected revocation to lapse with the token")
	}
}

func TestStoreReportsRedisOutage(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	if _, err := store.LookupRefreshSession(ctx, "x"); err == nil || errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected a transport error distinct from not-found, got %v", err)
	}
}
