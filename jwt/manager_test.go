package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		Issuer:     "authkit-test",
		DefaultTTL: ttl,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	m := testManager(t, time.Hour)

	token, expiresAt, err := m.Issue("u1", 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if until := time.Until(expiresAt); until < 55*time.Minute || until > 65*time.Minute {
		t.Fatalf("unexpected expiry: %v", expiresAt)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.UserID != "u1" {
		t.Fatalf("expected uid u1, got %q", claims.UserID)
	}
}

func TestVerifyExpired(t *testing.T) {
	m := testManager(t, time.Hour)

	token, _, err := m.Issue("u1", time.Millisecond)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := m.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for expired token, got %v", err)
	}
}

func TestVerifyTampered(t *testing.T) {
	m := testManager(t, time.Hour)

	token, _, err := m.Issue("u1", 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", token)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	if _, err := m.Verify(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for tampered token, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	m := testManager(t, time.Hour)
	other, err := NewManager(Config{
		Secret:     []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:     "authkit-test",
		DefaultTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, _, err := other.Issue("u1", 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := m.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for foreign signature, got %v", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	m := testManager(t, time.Hour)

	for _, token := range []string{"", "garbage", "a.b.c", "ey.ey.ey"} {
		if _, err := m.Verify(token); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("token %q: expected ErrTokenInvalid, got %v", token, err)
		}
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	if _, err := NewManager(Config{Secret: []byte("short"), DefaultTTL: time.Hour}); err == nil {
		t.Fatal("short secret accepted")
	}
	if _, err := NewManager(Config{Secret: []byte("0123456789abcdef0123456789abcdef")}); err == nil {
		t.Fatal("zero TTL accepted")
	}
	if _, err := NewManager(Config{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		DefaultTTL: time.Hour,
		Leeway:     time.Hour,
	}); err == nil {
		t.Fatal("oversized leeway accepted")
	}
}
