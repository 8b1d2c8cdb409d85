package authkit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teamdeck/authkit/jwt"
	"github.com/teamdeck/authkit/password"
	"github.com/teamdeck/authkit/storage"
)

// Engine is the authentication and session-security core. It is configured
// once through the Builder and safe for concurrent use afterwards; all
// durable state lives in the injected store.
type Engine struct {
	config      Config
	store       storage.Store
	hasher      *password.Argon2
	tokens      *jwt.Manager
	totp        *totpEngine
	challenges  *challengeStore
	guard       *accountGuard
	audit       *auditDispatcher
	codeSender  CodeSender
	resetSender ResetSender
	logger      *slog.Logger
	now         func() time.Time
}

// Close shuts down the audit dispatcher, draining queued events. The store
// and Redis client are owned by the caller and closed there.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many observer events were dropped because the
// audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// emitAudit queues an observer-sink event with actor metadata from ctx.
func (e *Engine) emitAudit(ctx context.Context, eventType, userID string, success bool, cause error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	e.audit.Emit(ctx, event)
}

// appendAudit writes the durable audit row for one of the four recorded
// actions. Unlike emitAudit this is synchronous and its error surfaces.
func (e *Engine) appendAudit(ctx context.Context, action, userID string) error {
	return e.store.AppendAudit(ctx, &storage.AuditEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		CreatedAt: e.now(),
	})
}
