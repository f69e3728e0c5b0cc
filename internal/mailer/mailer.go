// Package mailer implements the Mailer collaborator of SPEC_FULL.md §2:
// compose and synchronously send a message. Grounded on the teacher's
// manual net/smtp flow (backend/services/email/smtp.go).
package mailer

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/codesprinters/twillmanager/internal/config"
)

// Mailer sends a single message to one or more recipients.
type Mailer interface {
	Send(sender string, recipients []string, subject, body string) error
}

// SMTPMailer sends mail over SMTP, optionally with STARTTLS and PLAIN auth.
type SMTPMailer struct {
	server   string
	port     int
	login    string
	password string
	useTLS   bool
}

// NewSMTPMailer builds a mailer from the supervisor's configuration.
func NewSMTPMailer() *SMTPMailer {
	return &SMTPMailer{
		server:   config.Config.SMTPServer,
		port:     config.Config.SMTPPort,
		login:    config.Config.SMTPLogin,
		password: config.Config.SMTPPassword,
		useTLS:   config.Config.SMTPUseTLS,
	}
}

// Send composes a plain-text message and submits it over SMTP.
func (m *SMTPMailer) Send(sender string, recipients []string, subject, body string) error {
	if len(recipients) == 0 {
		return nil
	}

	msg := buildMessage(sender, recipients, subject, body)

	addr := fmt.Sprintf("%s:%d", m.server, m.port)
	conn, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Hello("localhost"); err != nil {
		return fmt.Errorf("SMTP EHLO failed: %w", err)
	}

	if m.useTLS {
		if err := conn.StartTLS(&tls.Config{ServerName: m.server}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if m.login != "" {
		auth := smtp.PlainAuth("", m.login, m.password, m.server)
		if err := conn.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := conn.Mail(sender); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, r := range recipients {
		if err := conn.Rcpt(r); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", r, err)
		}
	}

	w, err := conn.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return conn.Quit()
}

func buildMessage(sender string, recipients []string, subject, body string) string {
	var b strings.Builder
	b.WriteString("From: " + sender + "\r\n")
	b.WriteString("To: " + strings.Join(recipients, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

// ParseRecipients splits a comma-joined address list, trimming whitespace
// and dropping empty entries, per SPEC_FULL.md §4.2.
func ParseRecipients(emails string) []string {
	parts := strings.Split(emails, ",")
	recipients := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			recipients = append(recipients, p)
		}
	}
	return recipients
}
