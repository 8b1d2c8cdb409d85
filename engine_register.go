package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/teamdeck/authkit/storage"
)

// Register creates an account and signs it straight in. The email is
// normalized before the uniqueness check; a duplicate surfaces as
// ErrEmailInUse. New accounts have no second factor enrolled, so the
// returned session is immediately usable.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if err := validateRegisterInput(input); err != nil {
		return nil, err
	}

	email := normalizeEmail(input.Email)
	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &storage.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         input.Name,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    e.now(),
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			e.emitAudit(ctx, auditEventRegistrationDenied, "", false, ErrEmailInUse, map[string]string{
				"reason": "duplicate_email",
			})
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	if err := e.appendAudit(ctx, AuditRegister, user.ID); err != nil {
		e.logger.ErrorContext(ctx, "recording registration", "user", user.ID, "error", err)
	}

	return e.CreateSession(ctx, user.ID)
}

// ChangePassword rotates the password of an authenticated user. The current
// password must verify and the replacement must satisfy complexity rules;
// existing sessions stay valid but issued refresh tokens are revoked so
// other devices fall back to the login screen when their bearer expires.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, replacement, confirm string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := validateNewPassword(replacement, confirm); err != nil {
		return err
	}

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("loading user: %w", err)
	}
	if !e.hasher.Verify(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(replacement)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := e.store.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if err := e.store.DeleteRefreshTokensForUser(ctx, userID); err != nil {
		e.logger.WarnContext(ctx, "revoking refresh tokens", "user", userID, "error", err)
	}

	return e.appendAudit(ctx, AuditPasswordChange, userID)
}
