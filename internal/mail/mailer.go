// Package mail sends plain-text notification emails over SMTP.
package mail

import (
	"context"
	"crypto/tls"

	"gopkg.in/gomail.v2"

	"github.com/iliyamo/document-access-gate/internal/config"
)

// sender abstracts gomail's dialer so tests can capture messages.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer delivers through a single configured relay.
type SMTPMailer struct {
	from   string
	dialer sender
}

// NewSMTPMailer builds a mailer from MailConfig.  Credentials are optional;
// an unauthenticated relay is common for local MTAs.
func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.SSL
	if cfg.Username == "" {
		d.Auth = nil
	}
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return &SMTPMailer{from: cfg.From, dialer: d}
}

// Send delivers one message.  gomail has no context support, so ctx only
// short-circuits an already cancelled request.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return m.dialer.DialAndSend(msg)
}
