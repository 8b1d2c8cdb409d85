package authkit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/teamdeck/authkit/storage"
	"github.com/teamdeck/authkit/storage/memory"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// captureSender records delivered codes so tests can submit them.
type captureSender struct {
	mu     sync.Mutex
	codes  []string
	tokens []string
}

func (s *captureSender) SendCode(_ context.Context, _ storage.MethodType, _ string, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, code)
	return nil
}

func (s *captureSender) SendResetToken(_ context.Context, _ string, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, token)
	return nil
}

func (s *captureSender) lastCode(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		t.Fatal("no code was delivered")
	}
	return s.codes[len(s.codes)-1]
}

func (s *captureSender) lastToken(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tokens) == 0 {
		t.Fatal("no reset token was delivered")
	}
	return s.tokens[len(s.tokens)-1]
}

type testEnv struct {
	engine *Engine
	store  *memory.Store
	sender *captureSender
	redis  *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := DefaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16

	store := memory.New()
	sender := &captureSender{}

	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithRedis(client).
		WithCodeSender(sender).
		WithResetSender(sender).
		Build()
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, store: store, sender: sender, redis: mr}
}

// advance shifts the engine clock forward.
func (env *testEnv) advance(d time.Duration) {
	base := env.engine.now()
	env.engine.now = func() time.Time { return base.Add(d) }
	guard := env.engine.guard
	guard.now = func() time.Time { return env.engine.now() }
}

func (env *testEnv) register(t *testing.T, email, pass string) string {
	t.Helper()
	session, err := env.engine.Register(context.Background(), RegisterInput{
		Name:            "Test User",
		Email:           email,
		Password:        pass,
		ConfirmPassword: pass,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return session.UserID
}

const goodPassword = "Sup3r-Secret!"

func TestRegisterThenLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	userID := env.register(t, "alice@example.com", goodPassword)

	result, err := env.engine.Login(ctx, "alice@example.com", goodPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Session == nil {
		t.Fatal("expected a session for an account without second factor")
	}
	if result.Session.UserID != userID {
		t.Fatalf("session user = %q, want %q", result.Session.UserID, userID)
	}
	if result.TwoFactor != nil {
		t.Fatal("no challenge expected without enrolled methods")
	}

	info := env.engine.VerifySession(ctx, result.Session.Token)
	if info == nil || info.UserID != userID {
		t.Fatalf("VerifySession = %+v, want user %q", info, userID)
	}
}

func TestLoginNormalizesEmail(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "Bob@Example.COM", goodPassword)

	if _, err := env.engine.Login(context.Background(), "  bob@example.com ", goodPassword); err != nil {
		t.Fatalf("login with differently cased email: %v", err)
	}
}

func TestLoginUnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "carol@example.com", goodPassword)

	_, errUnknown := env.engine.Login(ctx, "nobody@example.com", goodPassword)
	_, errWrong := env.engine.Login(ctx, "carol@example.com", "Wrong-Pass1!")

	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("unknown email error = %v", errUnknown)
	}
	if !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("wrong password error = %v", errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatal("unknown-email and wrong-password errors must be indistinguishable")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "dave@example.com", goodPassword)

	_, err := env.engine.Register(context.Background(), RegisterInput{
		Name:            "Other Dave",
		Email:           "dave@example.com",
		Password:        goodPassword,
		ConfirmPassword: goodPassword,
	})
	if !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("duplicate register error = %v, want ErrEmailInUse", err)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Register(context.Background(), RegisterInput{
		Name:            "Weak",
		Email:           "weak@example.com",
		Password:        "alllowercase",
		ConfirmPassword: "alllowercase",
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if _, ok := vErr.Fields["password"]; !ok {
		t.Fatalf("fields = %v, want password entry", vErr.Fields)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	userID := env.register(t, "erin@example.com", goodPassword)
	env.store.SetActive(userID, false)

	_, err := env.engine.Login(ctx, "erin@example.com", goodPassword)
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("error = %v, want ErrAccountInactive", err)
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "frank@example.com", goodPassword)

	// The first five wrong passwords all report bad credentials; the fifth
	// one trips the lock.
	for i := 0; i < 5; i++ {
		_, err := env.engine.Login(ctx, "frank@example.com", "Wrong-Pass1!")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d error = %v, want ErrInvalidCredentials", i+1, err)
		}
	}

	// With the window open even the correct password is refused.
	_, err := env.engine.Login(ctx, "frank@example.com", goodPassword)
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked login error = %v, want ErrAccountLocked", err)
	}

	// Past the window the account auto-unlocks and the login succeeds.
	env.advance(15*time.Minute + time.Second)
	result, err := env.engine.Login(ctx, "frank@example.com", goodPassword)
	if err != nil {
		t.Fatalf("login after window: %v", err)
	}
	if result.Session == nil {
		t.Fatal("expected a session after auto-unlock")
	}
}

func TestFailureCounterResetsOnSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "grace@example.com", goodPassword)

	for i := 0; i < 4; i++ {
		_, _ = env.engine.Login(ctx, "grace@example.com", "Wrong-Pass1!")
	}
	if _, err := env.engine.Login(ctx, "grace@example.com", goodPassword); err != nil {
		t.Fatalf("login at four failures: %v", err)
	}

	// The counter restarted: four more failures still do not lock.
	for i := 0; i < 4; i++ {
		_, _ = env.engine.Login(ctx, "grace@example.com", "Wrong-Pass1!")
	}
	if _, err := env.engine.Login(ctx, "grace@example.com", goodPassword); err != nil {
		t.Fatalf("login after counter reset: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const replacement = "N3w-Secret-Pass!"
	userID := env.register(t, "henry@example.com", goodPassword)

	if err := env.engine.ChangePassword(ctx, userID, "Wrong-Pass1!", replacement, replacement); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("change with wrong current = %v, want ErrInvalidCredentials", err)
	}
	if err := env.engine.ChangePassword(ctx, userID, goodPassword, replacement, replacement); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, err := env.engine.Login(ctx, "henry@example.com", goodPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := env.engine.Login(ctx, "henry@example.com", replacement); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}
