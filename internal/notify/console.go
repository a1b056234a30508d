package notify

import (
	"context"
	"log/slog"
)

// ConsoleSender logs codes instead of delivering them. Development fallback
// when SMTP is not configured.
type ConsoleSender struct {
	logger *slog.Logger
}

// NewConsoleSender creates a log-only sender.
func NewConsoleSender(logger *slog.Logger) *ConsoleSender {
	return &ConsoleSender{logger: logger}
}

func (s *ConsoleSender) SendCode(ctx context.Context, channel, destination, code string) error {
	s.logger.Info("otp code issued (console delivery)",
		"channel", channel,
		"destination", destination,
		"code", code,
	)
	return nil
}
