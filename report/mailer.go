package report

import (
	"fmt"
	"net/smtp"
	"strings"

	"surveyor/config"
)

// Mailer delivers a rendered digest to a set of recipients.
type Mailer interface {
	Send(recipients []string, subject, htmlBody string) error
}

// SMTPMailer sends mail through a configured SMTP relay.
type SMTPMailer struct {
	cfg *config.SMTPConfig
}

func NewSMTPMailer(cfg *config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(recipients []string, subject, htmlBody string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients")
	}

	msg := buildMessage(m.cfg.From, recipients, subject, htmlBody)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(m.cfg.SMTPAddr(), auth, m.cfg.From, recipients, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func buildMessage(from string, recipients []string, subject, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(recipients, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}
