package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/tanmvo/relevance-ai-chat/internal/store"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rs, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })
	return rs, mr
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRefreshSessionLifecycle(t *testing.T) {
	rs, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := rs.SaveRefreshSession(ctx, "hash-1", "user-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save: %v", err)
	}
	user, err := rs.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("expected user-1, got %q", user.ID)
	}

	if err := rs.RevokeRefreshSession(ctx, "hash-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := rs.LookupRefreshSession(ctx, "hash-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after revoke, got %v", err)
	}
	if err := rs.RevokeRefreshSession(ctx, "never-saved"); err != nil {
		t.Fatalf("revoking a missing session should not fail: %v", err)
	}
}

func TestRefreshSessionExpires(t *testing.T) {
	rs, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "short", "user-2", time.Now().Add(time.Second)); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Second)

	if _, err := rs.LookupRefreshSession(ctx, "short"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
}

func TestAccessTokenRevocation(t *testing.T) {
	rs, mr := setupTestRedis(t)
	ctx := context.Background()

	revoked, err := rs.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("expected fresh token to be valid, revoked=%v err=%v", revoked, err)
	}
	if err := rs.RevokeAccessToken(ctx, "jti-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err = rs.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected token to be revoked, revoked=%v err=%v", revoked, err)
	}

	mr.FastForward(2 * time.Minute)
	revoked, _ = rs.IsAccessTokenRevoked(ctx, "jti-1")
	if revoked {
		t.Fatal("expected denylist entry to expire with the token")
	}

	if err := rs.RevokeAccessToken(ctx, "jti-old", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("revoking an expired token should be a no-op: %v", err)
	}
	if mr.Exists(revokedPrefix + "jti-old") {
		t.Fatal("expected no key for an already expired token")
	}
}
