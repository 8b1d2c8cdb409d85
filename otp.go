package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/teamdeck/authkit/internal"
	"github.com/teamdeck/authkit/storage"
)

// issueOTP mints a fresh delivered code for the (user, method) pair and
// persists its argon2 digest with the configured expiry. The plaintext is
// returned for the delivery collaborator and never stored.
func (e *Engine) issueOTP(ctx context.Context, userID, methodID string) (string, error) {
	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return "", fmt.Errorf("generating otp: %w", err)
	}

	hash, err := e.hasher.Hash(code)
	if err != nil {
		return "", fmt.Errorf("hashing otp: %w", err)
	}

	now := e.now()
	token := &storage.TwoFactorToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		MethodID:  methodID,
		CodeHash:  hash,
		ExpiresAt: now.Add(e.config.OTP.TTL),
		CreatedAt: now,
	}
	if err := e.store.CreateTwoFactorToken(ctx, token); err != nil {
		return "", fmt.Errorf("storing otp: %w", err)
	}

	return code, nil
}

// verifyOTP checks a submitted code against the most recent unexpired,
// unused token for the pair. A match marks the token used, so a second
// verification of the same code fails. Older tokens never match, even with
// the right code.
func (e *Engine) verifyOTP(ctx context.Context, userID, methodID, code string) (bool, error) {
	if len(code) != e.config.OTP.Digits || !isNumeric(code) {
		return false, nil
	}

	token, err := e.store.LatestTwoFactorToken(ctx, userID, methodID, e.now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("loading otp: %w", err)
	}

	if !e.hasher.Verify(code, token.CodeHash) {
		return false, nil
	}

	if err := e.store.MarkTwoFactorTokenUsed(ctx, token.ID); err != nil {
		return false, fmt.Errorf("consuming otp: %w", err)
	}
	return true, nil
}
