package authkit

import (
	"context"
	"errors"
	"testing"
)

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	userID := env.register(t, "ivy@example.com", goodPassword)

	first, err := env.engine.CreateSession(ctx, userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	second, err := env.engine.RefreshSession(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.UserID != userID {
		t.Fatalf("refreshed session user = %q, want %q", second.UserID, userID)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// The consumed token is dead; only the replacement works.
	if _, err := env.engine.RefreshSession(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("replayed refresh error = %v, want ErrInvalidRefreshToken", err)
	}
	if _, err := env.engine.RefreshSession(ctx, second.RefreshToken); err != nil {
		t.Fatalf("refresh with rotated token: %v", err)
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	userID := env.register(t, "judy@example.com", goodPassword)
	if _, err := env.engine.CreateSession(ctx, userID); err != nil {
		t.Fatalf("create session: %v", err)
	}

	for _, token := range []string{"", "not-a-token", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"} {
		if _, err := env.engine.RefreshSession(ctx, token); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("refresh(%q) error = %v, want ErrInvalidRefreshToken", token, err)
		}
	}
}

func TestVerifySessionRejectsForgedToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	userID := env.register(t, "kate@example.com", goodPassword)
	session, err := env.engine.CreateSession(ctx, userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if info := env.engine.VerifySession(ctx, session.Token+"x"); info != nil {
		t.Fatalf("tampered token verified as %+v", info)
	}
	if info := env.engine.VerifySession(ctx, ""); info != nil {
		t.Fatalf("empty token verified as %+v", info)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	userID := env.register(t, "liam@example.com", goodPassword)
	session, err := env.engine.CreateSession(ctx, userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := env.engine.Logout(ctx, session.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.engine.RefreshSession(ctx, session.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("refresh after logout = %v, want ErrInvalidRefreshToken", err)
	}

	// Logging out twice is harmless.
	if err := env.engine.Logout(ctx, session.RefreshToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}

func TestSessionAuditBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	userID := env.register(t, "mary@example.com", goodPassword)
	before := len(env.store.AuditEntries())

	if _, err := env.engine.CreateSession(ctx, userID); err != nil {
		t.Fatalf("create session: %v", err)
	}

	entries := env.store.AuditEntries()
	if len(entries) != before+1 {
		t.Fatalf("audit rows = %d, want %d", len(entries), before+1)
	}
	last := entries[len(entries)-1]
	if last.Action != AuditLogin || last.UserID != userID {
		t.Fatalf("audit row = %+v, want LOGIN for %q", last, userID)
	}

	user, err := env.store.UserByID(ctx, userID)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.LastLoginAt.IsZero() {
		t.Fatal("last login was not stamped")
	}
}
