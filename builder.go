package authkit

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teamdeck/authkit/jwt"
	"github.com/teamdeck/authkit/password"
	"github.com/teamdeck/authkit/storage"
)

// Builder assembles an Engine. The store handle, Redis client and delivery
// collaborators are injected explicitly; their lifecycles stay with the
// process entry point.
type Builder struct {
	config      Config
	store       storage.Store
	redis       *redis.Client
	codeSender  CodeSender
	resetSender ResetSender
	auditSink   AuditSink
	logger      *slog.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore injects the relational store the engine persists into.
func (b *Builder) WithStore(store storage.Store) *Builder {
	b.store = store
	return b
}

// WithRedis injects the Redis client backing pending two-factor challenges.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithCodeSender injects the email/SMS delivery collaborator for one-time
// codes.
func (b *Builder) WithCodeSender(sender CodeSender) *Builder {
	b.codeSender = sender
	return b
}

// WithResetSender injects the delivery collaborator for password-reset
// links.
func (b *Builder) WithResetSender(sender ResetSender) *Builder {
	b.resetSender = sender
	return b
}

// WithAuditSink injects the observer sink fed by the async dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger injects the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration and wiring and returns a ready Engine.
// A Builder builds at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("store is required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		Secret:     b.config.JWT.Secret,
		Issuer:     b.config.JWT.Issuer,
		DefaultTTL: b.config.JWT.SessionTTL,
		Leeway:     b.config.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:      b.config,
		store:       b.store,
		hasher:      hasher,
		tokens:      tokens,
		totp:        newTOTPEngine(b.config.TOTP),
		challenges:  newChallengeStore(b.redis, b.config.TwoFactor.RedisPrefix),
		audit:       newAuditDispatcher(b.config.Audit, b.auditSink),
		codeSender:  b.codeSender,
		resetSender: b.resetSender,
		logger:      logger,
		now:         time.Now,
	}
	engine.guard = &accountGuard{
		store:  b.store,
		config: b.config.Lockout,
		now:    func() time.Time { return engine.now() },
	}

	b.built = true
	return engine, nil
}
