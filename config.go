package authkit

import (
	"errors"
	"net/http"
	"time"
)

// Config carries every tunable of the auth engine. Instances are validated
// by the builder and treated as immutable afterwards.
type Config struct {
	JWT           JWTConfig
	Password      PasswordConfig
	TOTP          TOTPConfig
	OTP           OTPConfig
	Lockout       LockoutConfig
	TwoFactor     TwoFactorConfig
	Refresh       RefreshConfig
	PasswordReset PasswordResetConfig
	Audit         AuditConfig
	Security      SecurityConfig
}

// JWTConfig configures the session bearer tokens.
type JWTConfig struct {
	Secret     []byte
	Issuer     string
	SessionTTL time.Duration
	Leeway     time.Duration
}

// PasswordConfig carries the argon2id cost parameters.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// TOTPConfig configures authenticator-app verification. The defaults match
// what every mainstream authenticator generates: 6 digits, 30-second steps,
// SHA1, one step of clock-drift tolerance either side.
type TOTPConfig struct {
	Issuer string
	Digits int
	Period int
	Skew   int
}

// OTPConfig configures the delivered email/SMS codes.
type OTPConfig struct {
	Digits int
	TTL    time.Duration
}

// LockoutConfig is the account-guard policy: after Threshold consecutive
// failed password checks the account locks for Duration, then auto-unlocks
// on the next attempt.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// TwoFactorConfig governs the pending-challenge state between password
// verification and second-factor confirmation.
type TwoFactorConfig struct {
	ChallengeTTL time.Duration
	MaxAttempts  int
	RedisPrefix  string
}

// RefreshConfig configures refresh-token lifetime.
type RefreshConfig struct {
	TTL time.Duration
}

// PasswordResetConfig configures reset-ticket lifetime.
type PasswordResetConfig struct {
	TTL time.Duration
}

// AuditConfig configures the async audit dispatcher. The durable audit rows
// are always written; the dispatcher feeds optional observer sinks.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// SecurityConfig carries host-environment switches consumed by the HTTP
// surface: secure cookies and same-site policy.
type SecurityConfig struct {
	ProductionMode bool
	SameSitePolicy http.SameSite
	CookieDomain   string
}

// DefaultConfig returns the production defaults. The JWT secret must still
// be supplied by the host.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:     "authkit",
			SessionTTL: 7 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		TOTP: TOTPConfig{
			Issuer: "authkit",
			Digits: 6,
			Period: 30,
			Skew:   1,
		},
		OTP: OTPConfig{
			Digits: 6,
			TTL:    10 * time.Minute,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		TwoFactor: TwoFactorConfig{
			ChallengeTTL: 10 * time.Minute,
			MaxAttempts:  5,
			RedisPrefix:  "a2f",
		},
		Refresh: RefreshConfig{
			TTL: 30 * 24 * time.Hour,
		},
		PasswordReset: PasswordResetConfig{
			TTL: time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Security: SecurityConfig{
			ProductionMode: false,
			SameSitePolicy: http.SameSiteLaxMode,
		},
	}
}

// Validate checks the configuration for internally inconsistent or unsafe
// values.
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return errors.New("config: jwt secret must be at least 32 bytes")
	}
	if c.JWT.SessionTTL <= 0 {
		return errors.New("config: session TTL must be positive")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("config: totp digits out of range")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("config: totp period must be positive")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("config: totp skew out of range")
	}
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("config: otp digits out of range")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("config: otp TTL must be positive")
	}
	if c.Lockout.Threshold <= 0 {
		return errors.New("config: lockout threshold must be positive")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("config: lockout duration must be positive")
	}
	if c.TwoFactor.ChallengeTTL <= 0 {
		return errors.New("config: challenge TTL must be positive")
	}
	if c.TwoFactor.MaxAttempts <= 0 {
		return errors.New("config: challenge max attempts must be positive")
	}
	if c.Refresh.TTL <= 0 {
		return errors.New("config: refresh TTL must be positive")
	}
	if c.PasswordReset.TTL <= 0 {
		return errors.New("config: reset TTL must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
