// Package storage defines the relational records the auth core owns and the
// repository interfaces its components depend on. Implementations live in
// the postgres and memory subpackages; the engine is constructed against the
// Store interface so the backing store is an explicit, injected dependency.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("storage: record not found")
	// ErrDuplicateEmail is returned by CreateUser when the email is taken.
	ErrDuplicateEmail = errors.New("storage: email already registered")
)

// MethodType enumerates the supported second-factor channels. TOTP and
// AUTHENTICATOR are stored and verified identically; the distinction only
// drives the challenge UI.
type MethodType string

const (
	MethodEmail         MethodType = "EMAIL"
	MethodSMS           MethodType = "SMS"
	MethodTOTP          MethodType = "TOTP"
	MethodAuthenticator MethodType = "AUTHENTICATOR"
)

// Valid reports whether t is one of the known method types.
func (t MethodType) Valid() bool {
	switch t {
	case MethodEmail, MethodSMS, MethodTOTP, MethodAuthenticator:
		return true
	}
	return false
}

// UsesOTP reports whether the method is verified against a delivered
// one-time code rather than a provisioned device secret.
func (t MethodType) UsesOTP() bool {
	return t == MethodEmail || t == MethodSMS
}

// User is the identity record. Mutated by the login flow and the account
// guard; never deleted by the auth core.
type User struct {
	ID                string
	Email             string
	Name              string
	PasswordHash      string
	Active            bool
	Locked            bool
	FailedLogins      int
	LastFailedLoginAt time.Time
	LastLoginAt       time.Time
	CreatedAt         time.Time
}

// TwoFactorMethod is an enrolled second factor. Secret is set for
// TOTP/AUTHENTICATOR methods only; PhoneNumber for SMS. A user with at least
// one confirmed method has two-factor enabled. At most one method per user
// is primary.
type TwoFactorMethod struct {
	ID          string
	UserID      string
	Type        MethodType
	Secret      []byte
	PhoneNumber string
	Confirmed   bool
	Primary     bool
	LastUsedAt  time.Time
	CreatedAt   time.Time
}

// TwoFactorToken is an ephemeral delivered one-time code, stored only as a
// hash. Verification matches the most recent unexpired, unused token for the
// (user, method) pair; a match marks it used.
type TwoFactorToken struct {
	ID        string
	UserID    string
	MethodID  string
	CodeHash  string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// RefreshToken is a long-lived single-use credential, stored hashed.
// Consumed and replaced on every refresh.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ResetToken carries a password-reset ticket, stored hashed, deleted once
// consumed.
type ResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// AuditEntry is an append-only record of a security-relevant action.
type AuditEntry struct {
	ID        string
	UserID    string
	Action    string
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// UserStore persists identity records. Counter and lock updates happen in a
// single round-trip so concurrent failed logins cannot lose updates.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	UserByID(ctx context.Context, id string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	// RecordLoginFailure atomically increments the failure counter, stamps
	// the failure time, locks the account once the counter reaches
	// threshold, and returns the updated record.
	RecordLoginFailure(ctx context.Context, userID string, threshold int, at time.Time) (*User, error)
	// ResetLoginFailures zeroes the failure counter.
	ResetLoginFailures(ctx context.Context, userID string) error
	// Unlock clears the lock flag and zeroes the failure counter.
	Unlock(ctx context.Context, userID string) error
	SetLastLogin(ctx context.Context, userID string, at time.Time) error
}

// TwoFactorStore persists enrolled methods and their delivered codes.
type TwoFactorStore interface {
	CreateMethod(ctx context.Context, method *TwoFactorMethod) error
	MethodByID(ctx context.Context, id string) (*TwoFactorMethod, error)
	MethodsByUser(ctx context.Context, userID string) ([]*TwoFactorMethod, error)
	ConfirmMethod(ctx context.Context, id string) error
	// SetPrimary marks the method primary and clears the flag on every
	// other method of the same user.
	SetPrimary(ctx context.Context, userID, methodID string) error
	TouchMethod(ctx context.Context, id string, at time.Time) error
	DeleteMethod(ctx context.Context, id string) error

	CreateTwoFactorToken(ctx context.Context, token *TwoFactorToken) error
	// LatestTwoFactorToken returns the most recently created unexpired,
	// unused token for the pair, or ErrNotFound.
	LatestTwoFactorToken(ctx context.Context, userID, methodID string, now time.Time) (*TwoFactorToken, error)
	MarkTwoFactorTokenUsed(ctx context.Context, id string) error
}

// RefreshTokenStore persists hashed refresh tokens. The token value cannot
// be looked up by equality, so consumers scan the live set and verify
// hashes; ListActiveRefreshTokens may drop expired rows as a side effect.
type RefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, token *RefreshToken) error
	ListActiveRefreshTokens(ctx context.Context, now time.Time) ([]*RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, id string) error
	DeleteRefreshTokensForUser(ctx context.Context, userID string) error
}

// ResetTokenStore persists hashed password-reset tickets.
type ResetTokenStore interface {
	CreateResetToken(ctx context.Context, token *ResetToken) error
	ListActiveResetTokens(ctx context.Context, now time.Time) ([]*ResetToken, error)
	DeleteResetToken(ctx context.Context, id string) error
	DeleteResetTokensForUser(ctx context.Context, userID string) error
}

// AuditStore appends security-relevant actions. Entries are never mutated or
// deleted by the auth core.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *AuditEntry) error
}

// Store is the full persistence surface the engine is built against.
type Store interface {
	UserStore
	TwoFactorStore
	RefreshTokenStore
	ResetTokenStore
	AuditStore
}
