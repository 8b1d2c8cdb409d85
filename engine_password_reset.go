package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/teamdeck/authkit/internal"
	"github.com/teamdeck/authkit/storage"
)

// RequestPasswordReset starts the reset flow for email. It always returns
// nil for well-formed input regardless of whether an account exists, so the
// endpoint cannot be used to probe for registered addresses. Internal
// failures are logged and swallowed for the same reason.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if !validEmail(email) {
		return fieldErrors{"email": "must be a valid email address"}.err()
	}

	user, err := e.store.UserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.ErrorContext(ctx, "reset lookup failed", "error", err)
		}
		e.emitAudit(ctx, auditEventResetRequested, "", false, nil, map[string]string{
			"reason": "unknown_email",
		})
		return nil
	}

	value, err := internal.NewToken()
	if err != nil {
		e.logger.ErrorContext(ctx, "generating reset token", "user", user.ID, "error", err)
		return nil
	}
	hash, err := e.hasher.Hash(value)
	if err != nil {
		e.logger.ErrorContext(ctx, "hashing reset token", "user", user.ID, "error", err)
		return nil
	}

	// A fresh request invalidates earlier outstanding tickets.
	if err := e.store.DeleteResetTokensForUser(ctx, user.ID); err != nil {
		e.logger.WarnContext(ctx, "clearing stale reset tokens", "user", user.ID, "error", err)
	}

	now := e.now()
	row := &storage.ResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: now.Add(e.config.PasswordReset.TTL),
		CreatedAt: now,
	}
	if err := e.store.CreateResetToken(ctx, row); err != nil {
		e.logger.ErrorContext(ctx, "storing reset token", "user", user.ID, "error", err)
		return nil
	}

	if e.resetSender != nil {
		if err := e.resetSender.SendResetToken(ctx, user.Email, value); err != nil {
			e.logger.ErrorContext(ctx, "delivering reset token", "user", user.ID, "error", err)
			return nil
		}
	}

	e.emitAudit(ctx, auditEventResetRequested, user.ID, true, nil, nil)
	return nil
}

// ResetPassword consumes a reset ticket and installs a new password. The
// ticket value exists only in the delivered link, so live rows are scanned
// and hash-verified. A successful reset deletes the ticket, clears any
// lockout and revokes the user's refresh tokens.
func (e *Engine) ResetPassword(ctx context.Context, token, replacement, confirm string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrInvalidResetToken
	}
	if err := validateNewPassword(replacement, confirm); err != nil {
		return err
	}

	rows, err := e.store.ListActiveResetTokens(ctx, e.now())
	if err != nil {
		return fmt.Errorf("listing reset tokens: %w", err)
	}

	var matched *storage.ResetToken
	for _, row := range rows {
		if e.hasher.Verify(token, row.TokenHash) {
			matched = row
			break
		}
	}
	if matched == nil {
		e.emitAudit(ctx, auditEventResetFailure, "", false, ErrInvalidResetToken, nil)
		return ErrInvalidResetToken
	}

	hash, err := e.hasher.Hash(replacement)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := e.store.UpdatePasswordHash(ctx, matched.UserID, hash); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if err := e.store.DeleteResetToken(ctx, matched.ID); err != nil {
		return fmt.Errorf("consuming reset token: %w", err)
	}

	if err := e.store.Unlock(ctx, matched.UserID); err != nil {
		e.logger.WarnContext(ctx, "clearing lockout after reset", "user", matched.UserID, "error", err)
	}
	if err := e.store.DeleteRefreshTokensForUser(ctx, matched.UserID); err != nil {
		e.logger.WarnContext(ctx, "revoking refresh tokens", "user", matched.UserID, "error", err)
	}

	return e.appendAudit(ctx, AuditPasswordReset, matched.UserID)
}
