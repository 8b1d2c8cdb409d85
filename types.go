package authkit

import (
	"context"
	"time"

	"github.com/teamdeck/authkit/storage"
)

// Session is an established authenticated session: the signed bearer token
// plus the single-use refresh token, with their expiries. The HTTP surface
// maps these onto the session and refresh_token cookies.
type Session struct {
	UserID           string
	Token            string
	ExpiresAt        time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// SessionInfo is the result of verifying a bearer token.
type SessionInfo struct {
	UserID    string
	ExpiresAt time.Time
}

// TwoFactorChallenge describes a pending second-factor step. The client
// submits the user, method and code back through ConfirmTwoFactor.
type TwoFactorChallenge struct {
	UserID     string
	MethodID   string
	MethodType storage.MethodType
	ExpiresAt  time.Time
}

// LoginResult is the outcome of a password login: either an established
// Session, or a TwoFactorChallenge when a second factor is required.
// Exactly one of the two fields is set.
type LoginResult struct {
	Session   *Session
	TwoFactor *TwoFactorChallenge
}

// RegisterInput is the registration form payload.
type RegisterInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// TOTPEnrollment is returned when a TOTP/AUTHENTICATOR method is
// provisioned. Secret and URI are shown to the user once; the method stays
// inactive until a first valid code confirms it.
type TOTPEnrollment struct {
	MethodID string
	Secret   string
	URI      string
}

// CodeSender delivers a plaintext one-time code over the method's channel
// (email or SMS). The engine persists only the code's hash; delivery is an
// external collaborator.
type CodeSender interface {
	SendCode(ctx context.Context, channel storage.MethodType, recipient, code string) error
}

// ResetSender delivers a plaintext password-reset token, typically embedded
// in an emailed link.
type ResetSender interface {
	SendResetToken(ctx context.Context, email, token string) error
}
