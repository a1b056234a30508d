package notify

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/electio/votegate/internal/retry"
)

// Mailer sends one-time codes over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewMailer creates an SMTP-backed sender.
func NewMailer(host string, port int, username, password, from string) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

// SendCode emails the code. Only the "email" channel is supported; other
// channels report a delivery error so the caller can fall back or surface it.
// Transient SMTP failures are retried with backoff before the error surfaces.
func (m *Mailer) SendCode(ctx context.Context, channel, destination, code string) error {
	if channel != "email" {
		return fmt.Errorf("unsupported delivery channel %q", channel)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", destination)
	msg.SetHeader("Subject", "Your voting verification code")
	msg.SetBody("text/html", fmt.Sprintf(`
		<div style="font-family: sans-serif; max-width: 480px; margin: 0 auto;">
			<h2>Verification code</h2>
			<p>Use this code to finish signing in:</p>
			<p style="font-size: 32px; letter-spacing: 8px; font-weight: bold;">%s</p>
			<p>The code expires in 10 minutes. If you did not request it, ignore this email.</p>
		</div>`, code))

	err := retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		return m.dialer.DialAndSend(msg)
	})
	if err != nil {
		return fmt.Errorf("send code email: %w", err)
	}
	return nil
}
