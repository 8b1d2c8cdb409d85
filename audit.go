package authkit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit actions persisted durably and emitted to observer sinks.
const (
	AuditLogin          = "LOGIN"
	AuditRegister       = "REGISTER"
	AuditPasswordChange = "PASSWORD_CHANGE"
	AuditPasswordReset  = "PASSWORD_RESET"
)

// Observer-only event names; these never produce durable rows.
const (
	auditEventLoginFailure       = "LOGIN_FAILURE"
	auditEventTwoFactorRequired  = "TWO_FACTOR_REQUIRED"
	auditEventTwoFactorFailure   = "TWO_FACTOR_FAILURE"
	auditEventRefreshFailure     = "REFRESH_FAILURE"
	auditEventResetRequested     = "PASSWORD_RESET_REQUESTED"
	auditEventResetFailure       = "PASSWORD_RESET_FAILURE"
	auditEventEnrollment         = "TWO_FACTOR_ENROLLMENT"
	auditEventEnrollmentRemoved  = "TWO_FACTOR_REMOVED"
	auditEventRegistrationDenied = "REGISTRATION_DENIED"
)

// AuditEvent is the observer-sink record of a security-relevant action.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives audit events from the dispatcher. Implementations must
// tolerate concurrent calls.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel, mainly for tests and
// in-process consumers.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to the wrapped writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
