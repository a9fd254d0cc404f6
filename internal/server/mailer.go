package server

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"neurogpt/backend/internal/config"
)

// Mailer is the outbound-mail collaborator boundary. Delivery details stay
// behind it; handlers only hand over recipient, subject and body.
type Mailer interface {
	Send(to, subject, body string) error
}

type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewMailer returns an SMTP mailer when credentials are configured and a
// log-only mailer otherwise, so local development works without a mail
// account.
func NewMailer(cfg config.Config) Mailer {
	if strings.TrimSpace(cfg.MailUsername) == "" || strings.TrimSpace(cfg.MailPassword) == "" {
		return LogMailer{}
	}
	return &SMTPMailer{
		host:     cfg.MailHost,
		port:     cfg.MailPort,
		username: cfg.MailUsername,
		password: cfg.MailPassword,
		from:     cfg.MailFrom,
	}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	message := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"utf-8\"",
		"",
		body,
	}, "\r\n")

	auth := smtp.PlainAuth("", m.username, m.password, m.host)
	return smtp.SendMail(addr, auth, m.from, []string{to}, []byte(message))
}

// LogMailer records outbound mail instead of delivering it.
type LogMailer struct{}

func (LogMailer) Send(to, subject, _ string) error {
	log.Printf("mail (not configured) to=%s subject=%q", to, subject)
	return nil
}
