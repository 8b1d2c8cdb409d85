package main

import (
	"context"
	"log/slog"

	"github.com/teamdeck/authkit/storage"
)

// logCodeSender stands in for the mail/SMS gateway in environments without
// one. Codes land in the log, never in production output: wire a real
// sender before enabling PRODUCTION_MODE.
type logCodeSender struct {
	logger *slog.Logger
}

func (s logCodeSender) SendCode(ctx context.Context, channel storage.MethodType, recipient, code string) error {
	s.logger.InfoContext(ctx, "one-time code issued",
		"channel", string(channel), "recipient", recipient, "code", code)
	return nil
}

type logResetSender struct {
	logger *slog.Logger
}

func (s logResetSender) SendResetToken(ctx context.Context, email, token string) error {
	s.logger.InfoContext(ctx, "password reset token issued",
		"email", email, "token", token)
	return nil
}
