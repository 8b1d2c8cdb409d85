package authkit

import "errors"

var (
	// ErrEngineNotReady is returned when the engine or a required
	// collaborator was not wired before use.
	ErrEngineNotReady = errors.New("auth engine not ready")

	// ErrInvalidCredentials covers both an unknown email and a wrong
	// password. The two cases are deliberately indistinguishable to the
	// caller to prevent account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountInactive is returned when the account exists but is
	// disabled.
	ErrAccountInactive = errors.New("account inactive")

	// ErrAccountLocked is returned while the lockout window from repeated
	// failed password attempts is still open.
	ErrAccountLocked = errors.New("account locked")

	// ErrEmailInUse is returned by registration for a duplicate email.
	ErrEmailInUse = errors.New("email already in use")

	// ErrInvalidCode is returned for a second-factor code that does not
	// verify, including codes submitted against a missing or expired
	// challenge.
	ErrInvalidCode = errors.New("invalid two-factor code")

	// ErrCodeAttemptsExceeded is returned once a pending two-factor
	// challenge has absorbed its attempt budget; the login must restart.
	ErrCodeAttemptsExceeded = errors.New("two-factor attempts exceeded")

	// ErrInvalidRefreshToken is returned when no live refresh-token row
	// matches the presented value.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrInvalidResetToken is returned for an unknown, expired or already
	// consumed password-reset ticket.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")

	// ErrMethodNotFound is returned by two-factor method management when
	// the method does not exist or belongs to another user.
	ErrMethodNotFound = errors.New("two-factor method not found")

	// ErrTwoFactorUnavailable is returned when the challenge backend
	// cannot be reached.
	ErrTwoFactorUnavailable = errors.New("two-factor backend unavailable")
)
