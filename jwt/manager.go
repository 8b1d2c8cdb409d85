package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is returned for every verification failure: bad signature,
// malformed structure, wrong algorithm or expiry. Callers must not be able to
// distinguish these cases; the collapse is deliberate to avoid oracle leaks.
var ErrTokenInvalid = errors.New("token invalid")

const minSecretBytes = 32

// Config holds the signing parameters for session bearer tokens. Tokens are
// signed (not encrypted) with a symmetric secret held process-wide.
type Config struct {
	Secret     []byte
	Issuer     string
	DefaultTTL time.Duration
	Leeway     time.Duration
}

// Claims is the bearer-token payload: the authenticated user plus the
// registered expiry/issued-at set.
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Manager issues and verifies HS256 session bearer tokens. Instances are
// configured during initialization and treated as immutable afterwards.
type Manager struct {
	config Config
}

// NewManager validates the configuration and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	if cfg.DefaultTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)

	return &Manager{config: cfg}, nil
}

// Issue signs a bearer token for userID. A non-positive ttl falls back to the
// configured default. The returned time is the token's expiry.
func (m *Manager) Issue(userID string, ttl time.Duration) (string, time.Time, error) {
	if m == nil {
		return "", time.Time{}, errors.New("jwt manager not initialized")
	}
	if userID == "" {
		return "", time.Time{}, errors.New("empty user id")
	}
	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}

	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// Verify parses and validates a bearer token and returns its claims. Any
// failure, including expiry, maps to ErrTokenInvalid; the underlying parse
// error is intentionally not propagated.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	if m == nil {
		return nil, ErrTokenInvalid
	}
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.config.Leeway),
	}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
