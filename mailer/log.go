package mailer

import (
	"context"

	"go.uber.org/zap"
)

// LogMailer writes messages to the logger instead of sending them. Meant
// for local development, where the reset link is read from the console.
type LogMailer struct{}

func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

func (LogMailer) Send(_ context.Context, msg Message) error {
	zap.L().Info("Outbound email (not sent)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	zap.L().Debug("Outbound email body", zap.String("body", msg.TextBody))
	return nil
}
