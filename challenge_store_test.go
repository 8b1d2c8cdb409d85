package authkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/teamdeck/authkit/storage"
)

func newTestChallengeStore(t *testing.T) (*challengeStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return newChallengeStore(client, "a2f"), mr
}

func TestChallengeRoundtrip(t *testing.T) {
	store, _ := newTestChallengeStore(t)
	ctx := context.Background()

	record := &twoFactorChallenge{
		MethodID:  "method-1",
		Type:      storage.MethodEmail,
		ExpiresAt: time.Now().Add(10 * time.Minute).Unix(),
	}
	if err := store.Save(ctx, "user-1", record, 10*time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MethodID != record.MethodID || got.Type != record.Type || got.ExpiresAt != record.ExpiresAt {
		t.Fatalf("got %+v, want %+v", got, record)
	}
	if got.Attempts != 0 {
		t.Fatalf("fresh challenge attempts = %d, want 0", got.Attempts)
	}
}

func TestChallengeMissing(t *testing.T) {
	store, _ := newTestChallengeStore(t)

	_, err := store.Get(context.Background(), "nobody")
	if !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("error = %v, want errChallengeNotFound", err)
	}
}

func TestChallengeExpiry(t *testing.T) {
	store, _ := newTestChallengeStore(t)
	ctx := context.Background()

	record := &twoFactorChallenge{
		MethodID:  "method-1",
		Type:      storage.MethodTOTP,
		ExpiresAt: time.Now().Add(-time.Second).Unix(),
	}
	if err := store.Save(ctx, "user-1", record, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := store.Get(ctx, "user-1"); !errors.Is(err, errChallengeExpired) {
		t.Fatalf("error = %v, want errChallengeExpired", err)
	}
	// The expired record was removed on read.
	if _, err := store.Get(ctx, "user-1"); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("second read error = %v, want errChallengeNotFound", err)
	}
}

func TestChallengeReplacedByNewLogin(t *testing.T) {
	store, _ := newTestChallengeStore(t)
	ctx := context.Background()

	expires := time.Now().Add(10 * time.Minute).Unix()
	first := &twoFactorChallenge{MethodID: "method-1", Type: storage.MethodEmail, ExpiresAt: expires}
	second := &twoFactorChallenge{MethodID: "method-2", Type: storage.MethodSMS, ExpiresAt: expires}

	if err := store.Save(ctx, "user-1", first, 10*time.Minute); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := store.Save(ctx, "user-1", second, 10*time.Minute); err != nil {
		t.Fatalf("save second: %v", err)
	}

	got, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MethodID != "method-2" {
		t.Fatalf("method = %q, want the replacement", got.MethodID)
	}
}

func TestChallengeDelete(t *testing.T) {
	store, _ := newTestChallengeStore(t)
	ctx := context.Background()

	record := &twoFactorChallenge{
		MethodID:  "method-1",
		Type:      storage.MethodEmail,
		ExpiresAt: time.Now().Add(10 * time.Minute).Unix(),
	}
	if err := store.Save(ctx, "user-1", record, 10*time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	existed, err := store.Delete(ctx, "user-1")
	if err != nil || !existed {
		t.Fatalf("delete = (%v, %v), want (true, nil)", existed, err)
	}
	existed, err = store.Delete(ctx, "user-1")
	if err != nil || existed {
		t.Fatalf("second delete = (%v, %v), want (false, nil)", existed, err)
	}
}

func TestRecordFailureCountsToExhaustion(t *testing.T) {
	store, _ := newTestChallengeStore(t)
	ctx := context.Background()

	record := &twoFactorChallenge{
		MethodID:  "method-1",
		Type:      storage.MethodEmail,
		ExpiresAt: time.Now().Add(10 * time.Minute).Unix(),
	}
	if err := store.Save(ctx, "user-1", record, 10*time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	const maxAttempts = 3
	for i := 1; i < maxAttempts; i++ {
		exceeded, err := store.RecordFailure(ctx, "user-1", maxAttempts)
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if exceeded {
			t.Fatalf("failure %d reported exhaustion early", i)
		}
	}

	exceeded, err := store.RecordFailure(ctx, "user-1", maxAttempts)
	if err != nil {
		t.Fatalf("final failure: %v", err)
	}
	if !exceeded {
		t.Fatal("budget exhaustion was not reported")
	}

	// The exhausted challenge is gone.
	if _, err := store.Get(ctx, "user-1"); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("post-exhaustion get = %v, want errChallengeNotFound", err)
	}
}

func TestRecordFailureKeepsTTL(t *testing.T) {
	store, mr := newTestChallengeStore(t)
	ctx := context.Background()

	record := &twoFactorChallenge{
		MethodID:  "method-1",
		Type:      storage.MethodEmail,
		ExpiresAt: time.Now().Add(10 * time.Minute).Unix(),
	}
	if err := store.Save(ctx, "user-1", record, 10*time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := store.RecordFailure(ctx, "user-1", 5); err != nil {
		t.Fatalf("failure: %v", err)
	}

	ttl := mr.TTL("a2f:user-1")
	if ttl <= 0 || ttl > 10*time.Minute {
		t.Fatalf("TTL after failure = %v, want the original window", ttl)
	}
}

func TestRecordFailureMissingChallenge(t *testing.T) {
	store, _ := newTestChallengeStore(t)

	_, err := store.RecordFailure(context.Background(), "nobody", 5)
	if !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("error = %v, want errChallengeNotFound", err)
	}
}

func TestChallengeDecodeRejectsCorruptData(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		{},
		{0xff},
		{challengeRecordVersion1, 0x00},
		{challengeRecordVersion1, 0x00, 0x04, 'a', 'b'},
	} {
		if _, err := decodeChallenge(data); err == nil {
			t.Errorf("decodeChallenge(%v) accepted corrupt input", data)
		}
	}
}
