// Package postgres implements storage.Store on a pgx connection pool. The
// hashed-token tables are scanned, never looked up by value; expired rows
// are dropped opportunistically during those scans.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamdeck/authkit/storage"
)

var _ storage.Store = (*Store)(nil)

// Store is a postgres-backed storage.Store. The pool is injected and its
// lifecycle is owned by the caller.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. It does not ping or migrate; see Migrate.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const userColumns = `id, email, name, password_hash, active, locked,
	failed_logins, last_failed_login_at, last_login_at, created_at`

func scanUser(row pgx.Row) (*storage.User, error) {
	var (
		user         storage.User
		lastFailed   *time.Time
		lastLogin    *time.Time
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Active,
		&user.Locked, &user.FailedLogins, &lastFailed, &lastLogin,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	if lastFailed != nil {
		user.LastFailedLoginAt = *lastFailed
	}
	if lastLogin != nil {
		user.LastLoginAt = *lastLogin
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *storage.User) error {
	query := `INSERT INTO users (id, email, name, password_hash, active, locked, failed_logins, created_at)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, now())`

	_, err := s.pool.Exec(ctx, query,
		user.ID, user.Email, user.Name, user.PasswordHash, user.Active,
		user.Locked, user.FailedLogins,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateEmail
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*storage.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.pool.QueryRow(ctx, query, id))
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*storage.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = lower($1)`
	return scanUser(s.pool.QueryRow(ctx, query, email))
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.execOne(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
}

// RecordLoginFailure increments the counter and flips the lock flag in one
// statement so concurrent failures cannot lose updates.
func (s *Store) RecordLoginFailure(ctx context.Context, userID string, threshold int, at time.Time) (*storage.User, error) {
	query := `UPDATE users
		SET failed_logins = failed_logins + 1,
			last_failed_login_at = $3,
			locked = locked OR (failed_logins + 1 >= $2)
		WHERE id = $1
		RETURNING ` + userColumns

	return scanUser(s.pool.QueryRow(ctx, query, userID, threshold, at))
}

func (s *Store) ResetLoginFailures(ctx context.Context, userID string) error {
	return s.execOne(ctx,
		`UPDATE users SET failed_logins = 0 WHERE id = $1`, userID)
}

func (s *Store) Unlock(ctx context.Context, userID string) error {
	return s.execOne(ctx,
		`UPDATE users SET locked = false, failed_logins = 0 WHERE id = $1`, userID)
}

func (s *Store) SetLastLogin(ctx context.Context, userID string, at time.Time) error {
	return s.execOne(ctx,
		`UPDATE users SET last_login_at = $2 WHERE id = $1`, userID, at)
}

func (s *Store) CreateMethod(ctx context.Context, method *storage.TwoFactorMethod) error {
	query := `INSERT INTO two_factor_methods
		(id, user_id, type, secret, phone_number, confirmed, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())`

	_, err := s.pool.Exec(ctx, query,
		method.ID, method.UserID, string(method.Type), method.Secret,
		method.PhoneNumber, method.Confirmed, method.Primary,
	)
	if err != nil {
		return fmt.Errorf("inserting two-factor method: %w", err)
	}
	return nil
}

const methodColumns = `id, user_id, type, secret, phone_number, confirmed,
	is_primary, last_used_at, created_at`

func scanMethod(row pgx.Row) (*storage.TwoFactorMethod, error) {
	var (
		method   storage.TwoFactorMethod
		typ      string
		lastUsed *time.Time
	)
	err := row.Scan(
		&method.ID, &method.UserID, &typ, &method.Secret, &method.PhoneNumber,
		&method.Confirmed, &method.Primary, &lastUsed, &method.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scanning two-factor method: %w", err)
	}
	method.Type = storage.MethodType(typ)
	if lastUsed != nil {
		method.LastUsedAt = *lastUsed
	}
	return &method, nil
}

func (s *Store) MethodByID(ctx context.Context, id string) (*storage.TwoFactorMethod, error) {
	query := `SELECT ` + methodColumns + ` FROM two_factor_methods WHERE id = $1`
	return scanMethod(s.pool.QueryRow(ctx, query, id))
}

func (s *Store) MethodsByUser(ctx context.Context, userID string) ([]*storage.TwoFactorMethod, error) {
	query := `SELECT ` + methodColumns + ` FROM two_factor_methods
		WHERE user_id = $1 ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing two-factor methods: %w", err)
	}
	defer rows.Close()

	var out []*storage.TwoFactorMethod
	for rows.Next() {
		method, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, method)
	}
	return out, rows.Err()
}

func (s *Store) ConfirmMethod(ctx context.Context, id string) error {
	return s.execOne(ctx,
		`UPDATE two_factor_methods SET confirmed = true WHERE id = $1`, id)
}

func (s *Store) SetPrimary(ctx context.Context, userID, methodID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Clear before set. The partial unique index on (user_id) WHERE
	// is_primary is checked per row, so a single flip-everything UPDATE can
	// trip it depending on physical row order.
	if _, err := tx.Exec(ctx,
		`UPDATE two_factor_methods SET is_primary = false WHERE user_id = $1 AND is_primary`,
		userID); err != nil {
		return fmt.Errorf("clearing primary flags: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE two_factor_methods SET is_primary = true WHERE id = $2 AND user_id = $1`,
		userID, methodID)
	if err != nil {
		return fmt.Errorf("setting primary flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return tx.Commit(ctx)
}

func (s *Store) TouchMethod(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx,
		`UPDATE two_factor_methods SET last_used_at = $2 WHERE id = $1`, id, at)
}

func (s *Store) DeleteMethod(ctx context.Context, id string) error {
	// two_factor_tokens rows cascade.
	return s.execOne(ctx,
		`DELETE FROM two_factor_methods WHERE id = $1`, id)
}

func (s *Store) CreateTwoFactorToken(ctx context.Context, token *storage.TwoFactorToken) error {
	query := `INSERT INTO two_factor_tokens
		(id, user_id, method_id, code_hash, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`

	_, err := s.pool.Exec(ctx, query,
		token.ID, token.UserID, token.MethodID, token.CodeHash,
		token.ExpiresAt, token.Used,
	)
	if err != nil {
		return fmt.Errorf("inserting two-factor token: %w", err)
	}
	return nil
}

func (s *Store) LatestTwoFactorToken(ctx context.Context, userID, methodID string, now time.Time) (*storage.TwoFactorToken, error) {
	query := `SELECT id, user_id, method_id, code_hash, expires_at, used, created_at
		FROM two_factor_tokens
		WHERE user_id = $1 AND method_id = $2 AND used = false AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1`

	var token storage.TwoFactorToken
	err := s.pool.QueryRow(ctx, query, userID, methodID, now).Scan(
		&token.ID, &token.UserID, &token.MethodID, &token.CodeHash,
		&token.ExpiresAt, &token.Used, &token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("selecting two-factor token: %w", err)
	}
	return &token, nil
}

func (s *Store) MarkTwoFactorTokenUsed(ctx context.Context, id string) error {
	return s.execOne(ctx,
		`UPDATE two_factor_tokens SET used = true WHERE id = $1`, id)
}

func (s *Store) CreateRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	query := `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, now())`

	_, err := s.pool.Exec(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting refresh token: %w", err)
	}
	return nil
}

func (s *Store) ListActiveRefreshTokens(ctx context.Context, now time.Time) ([]*storage.RefreshToken, error) {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= $1`, now); err != nil {
		return nil, fmt.Errorf("pruning refresh tokens: %w", err)
	}

	query := `SELECT id, user_id, token_hash, expires_at, created_at
		FROM refresh_tokens WHERE expires_at > $1 ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("listing refresh tokens: %w", err)
	}
	defer rows.Close()

	var out []*storage.RefreshToken
	for rows.Next() {
		var token storage.RefreshToken
		if err := rows.Scan(&token.ID, &token.UserID, &token.TokenHash,
			&token.ExpiresAt, &token.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning refresh token: %w", err)
		}
		out = append(out, &token)
	}
	return out, rows.Err()
}

func (s *Store) DeleteRefreshToken(ctx context.Context, id string) error {
	return s.execOne(ctx,
		`DELETE FROM refresh_tokens WHERE id = $1`, id)
}

func (s *Store) DeleteRefreshTokensForUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deleting refresh tokens: %w", err)
	}
	return nil
}

func (s *Store) CreateResetToken(ctx context.Context, token *storage.ResetToken) error {
	query := `INSERT INTO reset_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, now())`

	_, err := s.pool.Exec(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting reset token: %w", err)
	}
	return nil
}

func (s *Store) ListActiveResetTokens(ctx context.Context, now time.Time) ([]*storage.ResetToken, error) {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM reset_tokens WHERE expires_at <= $1`, now); err != nil {
		return nil, fmt.Errorf("pruning reset tokens: %w", err)
	}

	query := `SELECT id, user_id, token_hash, expires_at, created_at
		FROM reset_tokens WHERE expires_at > $1 ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("listing reset tokens: %w", err)
	}
	defer rows.Close()

	var out []*storage.ResetToken
	for rows.Next() {
		var token storage.ResetToken
		if err := rows.Scan(&token.ID, &token.UserID, &token.TokenHash,
			&token.ExpiresAt, &token.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning reset token: %w", err)
		}
		out = append(out, &token)
	}
	return out, rows.Err()
}

func (s *Store) DeleteResetToken(ctx context.Context, id string) error {
	return s.execOne(ctx,
		`DELETE FROM reset_tokens WHERE id = $1`, id)
}

func (s *Store) DeleteResetTokensForUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM reset_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deleting reset tokens: %w", err)
	}
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, entry *storage.AuditEntry) error {
	query := `INSERT INTO audit_log (id, user_id, action, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`

	_, err := s.pool.Exec(ctx, query,
		entry.ID, entry.UserID, entry.Action, entry.IP, entry.UserAgent)
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("executing update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
