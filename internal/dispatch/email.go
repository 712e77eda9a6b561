package dispatch

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
	gomail "gopkg.in/gomail.v2"
)

// EmailConfig holds the SMTP relay settings the engine sends through.
// Provider selection is explicitly out of scope; this is a thin wrapper
// over whatever SMTP_HOST points at.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailSender dispatches over SMTP via gopkg.in/gomail.v2, the only
// email library present in the retrieved corpus. Sends are paced by a
// token-bucket limiter so a reminder with many contacts (or a burst of
// webhook triggers in event mode) cannot overrun the SMTP relay.
type EmailSender struct {
	dialer  *gomail.Dialer
	from    string
	limiter *rate.Limiter
}

// NewEmailSender builds an EmailSender. ratePerSecond and burst
// configure the outbound pacing; a ratePerSecond of 0 disables
// limiting (unlimited).
func NewEmailSender(cfg EmailConfig, ratePerSecond float64, burst int) *EmailSender {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)

	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}

	return &EmailSender{dialer: dialer, from: cfg.From, limiter: limiter}
}

// Send waits for rate-limiter permission, then dials the SMTP relay and
// delivers a single message. It implements Sender.
func (e *EmailSender) Send(ctx context.Context, address, subject, body string) error {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("dispatch: rate limit wait: %w", err)
		}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", address)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := e.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("dispatch: send email to %s: %w", address, err)
	}
	return nil
}
