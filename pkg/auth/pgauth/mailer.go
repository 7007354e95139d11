package pgauth

import (
	"context"
	"log/slog"
)

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, to, link string) error

// SendPasswordReset implements Mailer.
func (f MailerFunc) SendPasswordReset(ctx context.Context, to, link string) error {
	return f(ctx, to, link)
}

// LogMailer writes reset links to the log instead of sending mail.
// Use it in development; outbound mail is delivered by a separate service.
type LogMailer struct {
	Logger *slog.Logger
}

// SendPasswordReset implements Mailer.
func (m *LogMailer) SendPasswordReset(ctx context.Context, to, link string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "password reset link", "to", to, "link", link)
	return nil
}
