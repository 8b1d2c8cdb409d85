package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/teamdeck/authkit/storage"
)

// Login runs the password stage of authentication: input shape → user
// lookup → active check → lockout gate → password verification → second
// factor branch. An unknown email and a wrong password produce the same
// ErrInvalidCredentials. When the account has a confirmed second factor the
// result carries a TwoFactorChallenge instead of a Session and the login
// stays pending until ConfirmTwoFactor succeeds.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if err := validateLoginInput(email, plaintext); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)

	user, err := e.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.emitAudit(ctx, auditEventLoginFailure, "", false, ErrInvalidCredentials, map[string]string{
				"reason": "user_not_found",
			})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if !user.Active {
		e.emitAudit(ctx, auditEventLoginFailure, user.ID, false, ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	}

	unlocked, err := e.guard.checkLockout(ctx, user)
	if err != nil {
		if errors.Is(err, ErrAccountLocked) {
			e.emitAudit(ctx, auditEventLoginFailure, user.ID, false, ErrAccountLocked, map[string]string{
				"reason": "lockout_window_open",
			})
		}
		return nil, err
	}
	user = unlocked

	if !e.hasher.Verify(plaintext, user.PasswordHash) {
		updated, gerr := e.guard.recordFailure(ctx, user.ID)
		if gerr != nil {
			e.logger.ErrorContext(ctx, "recording login failure", "user", user.ID, "error", gerr)
		}
		meta := map[string]string{"reason": "password_mismatch"}
		if updated != nil && updated.Locked {
			meta["locked"] = "true"
		}
		e.emitAudit(ctx, auditEventLoginFailure, user.ID, false, ErrInvalidCredentials, meta)
		return nil, ErrInvalidCredentials
	}

	if err := e.guard.recordSuccess(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("resetting failure counter: %w", err)
	}

	e.maybeUpgradePasswordHash(ctx, user, plaintext)

	method, err := e.pickSecondFactor(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if method == nil {
		session, err := e.CreateSession(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		return &LoginResult{Session: session}, nil
	}

	challenge, err := e.beginTwoFactor(ctx, user, method)
	if err != nil {
		return nil, err
	}
	return &LoginResult{TwoFactor: challenge}, nil
}

// maybeUpgradePasswordHash rehashes the password with current cost
// parameters after a successful verification. Failures are logged, never
// surfaced: the login already succeeded.
func (e *Engine) maybeUpgradePasswordHash(ctx context.Context, user *storage.User, plaintext string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needsUpgrade, err := e.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needsUpgrade {
		return
	}
	upgraded, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.logger.WarnContext(ctx, "password hash upgrade generation failed", "user", user.ID)
		return
	}
	if err := e.store.UpdatePasswordHash(ctx, user.ID, upgraded); err != nil {
		e.logger.WarnContext(ctx, "password hash upgrade update failed", "user", user.ID)
	}
}

// pickSecondFactor returns the method that drives the challenge, or nil when
// no confirmed method is enrolled. The primary method wins; otherwise the
// oldest confirmed enrollment.
func (e *Engine) pickSecondFactor(ctx context.Context, userID string) (*storage.TwoFactorMethod, error) {
	methods, err := e.store.MethodsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing two-factor methods: %w", err)
	}

	var fallback *storage.TwoFactorMethod
	for _, method := range methods {
		if !method.Confirmed {
			continue
		}
		if method.Primary {
			return method, nil
		}
		if fallback == nil {
			fallback = method
		}
	}
	return fallback, nil
}

// beginTwoFactor records the pending challenge and, for delivered-code
// methods, issues and sends a fresh OTP. TOTP/AUTHENTICATOR methods need no
// issuance: the secret already lives on the user's device.
func (e *Engine) beginTwoFactor(ctx context.Context, user *storage.User, method *storage.TwoFactorMethod) (*TwoFactorChallenge, error) {
	if e.challenges == nil {
		return nil, ErrEngineNotReady
	}

	expiresAt := e.now().Add(e.config.TwoFactor.ChallengeTTL)
	record := &twoFactorChallenge{
		MethodID:  method.ID,
		Type:      method.Type,
		ExpiresAt: expiresAt.Unix(),
	}
	if err := e.challenges.Save(ctx, user.ID, record, e.config.TwoFactor.ChallengeTTL); err != nil {
		return nil, mapChallengeStoreError(err)
	}

	if method.Type.UsesOTP() {
		code, err := e.issueOTP(ctx, user.ID, method.ID)
		if err != nil {
			return nil, err
		}
		if e.codeSender == nil {
			return nil, ErrEngineNotReady
		}
		recipient := user.Email
		if method.Type == storage.MethodSMS {
			recipient = method.PhoneNumber
		}
		if err := e.codeSender.SendCode(ctx, method.Type, recipient, code); err != nil {
			return nil, fmt.Errorf("delivering one-time code: %w", err)
		}
	}

	e.emitAudit(ctx, auditEventTwoFactorRequired, user.ID, true, nil, map[string]string{
		"method_type": string(method.Type),
	})

	return &TwoFactorChallenge{
		UserID:     user.ID,
		MethodID:   method.ID,
		MethodType: method.Type,
		ExpiresAt:  expiresAt,
	}, nil
}

func mapChallengeStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errChallengeNotFound), errors.Is(err, errChallengeExpired):
		return ErrInvalidCode
	case errors.Is(err, errChallengeExceeded):
		return ErrCodeAttemptsExceeded
	default:
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
}
