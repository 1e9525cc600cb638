package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
)

// Mailer sends access codes over email.
type Mailer interface {
	SendCode(ctx context.Context, to, code string) error
}

// LogMailer logs codes to stdout (dev mode).
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a mailer that logs instead of sending email.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendCode(ctx context.Context, to, code string) error {
	m.logger.Info("access code generated", "to", to, "code", code)
	return nil
}

// SMTPMailer sends codes via SMTP.
type SMTPMailer struct {
	host     string
	port     string
	username string
	password string
	from     string
}

// NewSMTPMailer creates a mailer that sends via SMTP.
func NewSMTPMailer(host, port, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

func (m *SMTPMailer) SendCode(ctx context.Context, to, code string) error {
	subject := "Your Teleglass access code"
	body := fmt.Sprintf("Your one-time access code is:\n\n%s\n\nIt expires in 10 minutes.", code)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.from, to, subject, body)

	auth := smtp.PlainAuth("", m.username, m.password, m.host)
	addr := m.host + ":" + m.port
	return smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg))
}
