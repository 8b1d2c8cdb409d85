package authkit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teamdeck/authkit/internal"
	"github.com/teamdeck/authkit/storage"
)

// CreateSession establishes a session for userID: a signed bearer token plus
// a fresh single-use refresh token whose argon2 digest is persisted. The
// three side effects (refresh-token insert, last-login stamp, durable LOGIN
// audit row) run as a parallel batch; the first failure surfaces and the
// session is not returned.
func (e *Engine) CreateSession(ctx context.Context, userID string) (*Session, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	token, expiresAt, err := e.tokens.Issue(userID, e.config.JWT.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing bearer token: %w", err)
	}

	refreshValue, err := internal.NewToken()
	if err != nil {
		return nil, fmt.Errorf("generating refresh token: %w", err)
	}
	refreshHash, err := e.hasher.Hash(refreshValue)
	if err != nil {
		return nil, fmt.Errorf("hashing refresh token: %w", err)
	}

	now := e.now()
	refreshRow := &storage.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: refreshHash,
		ExpiresAt: now.Add(e.config.Refresh.TTL),
		CreatedAt: now,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.store.CreateRefreshToken(gctx, refreshRow)
	})
	g.Go(func() error {
		return e.store.SetLastLogin(gctx, userID, now)
	})
	g.Go(func() error {
		return e.appendAudit(gctx, AuditLogin, userID)
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("establishing session: %w", err)
	}

	return &Session{
		UserID:           userID,
		Token:            token,
		ExpiresAt:        expiresAt,
		RefreshToken:     refreshValue,
		RefreshExpiresAt: refreshRow.ExpiresAt,
	}, nil
}

// RefreshSession exchanges a refresh token for a new session. The token is
// stored only as a hash, so every live row is scanned and hash-verified; the
// scan completes over all candidates before failure is declared. A match is
// deleted before the replacement session is created (rotation), so a reused
// token fails.
func (e *Engine) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	rows, err := e.store.ListActiveRefreshTokens(ctx, e.now())
	if err != nil {
		return nil, fmt.Errorf("listing refresh tokens: %w", err)
	}

	var matched *storage.RefreshToken
	for _, row := range rows {
		if e.hasher.Verify(refreshToken, row.TokenHash) {
			matched = row
			break
		}
	}
	if matched == nil {
		e.emitAudit(ctx, auditEventRefreshFailure, "", false, ErrInvalidRefreshToken, nil)
		return nil, ErrInvalidRefreshToken
	}

	if err := e.store.DeleteRefreshToken(ctx, matched.ID); err != nil {
		return nil, fmt.Errorf("rotating refresh token: %w", err)
	}

	return e.CreateSession(ctx, matched.UserID)
}

// Logout revokes the refresh token backing a session. The bearer token
// stays valid until its own expiry; revocation only prevents renewal.
// Unknown tokens are a no-op, logging out twice is not an error.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil
	}

	rows, err := e.store.ListActiveRefreshTokens(ctx, e.now())
	if err != nil {
		return fmt.Errorf("listing refresh tokens: %w", err)
	}
	for _, row := range rows {
		if e.hasher.Verify(refreshToken, row.TokenHash) {
			return e.store.DeleteRefreshToken(ctx, row.ID)
		}
	}
	return nil
}

// VerifySession validates a bearer token and returns the session identity,
// or nil when the token is missing, malformed, forged or expired. It never
// returns an error to the caller; verification failures degrade to "no
// session" and are logged at debug level only.
func (e *Engine) VerifySession(ctx context.Context, token string) *SessionInfo {
	if e == nil || e.tokens == nil || token == "" {
		return nil
	}

	claims, err := e.tokens.Verify(token)
	if err != nil {
		e.logger.DebugContext(ctx, "session verification failed", "error", err)
		return nil
	}

	info := &SessionInfo{UserID: claims.UserID}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info
}
