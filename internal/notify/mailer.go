// Package notify delivers transactional email. Delivery is asynchronous
// and best-effort: no request path ever blocks on the mail server.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/nimbuslab/crewbase/internal/common/config"
	"go.uber.org/zap"
)

// Message is one outbound email.
type Message struct {
	To       string
	Subject  string
	Body     string
	Template string
}

// Mailer sends a single message.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// NewMailer returns the SMTP mailer, or a log-only mailer when delivery
// is disabled in configuration.
func NewMailer(cfg *config.SMTPConfig, logger *zap.Logger) Mailer {
	if !cfg.Enabled {
		return &logMailer{logger: logger.Named("mail")}
	}
	return &smtpMailer{cfg: cfg, logger: logger.Named("mail")}
}

type smtpMailer struct {
	cfg    *config.SMTPConfig
	logger *zap.Logger
}

func (m *smtpMailer) Send(_ context.Context, msg *Message) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// logMailer records what would have been sent. Used in development and
// whenever SMTP is not configured.
type logMailer struct {
	logger *zap.Logger
}

func (m *logMailer) Send(_ context.Context, msg *Message) error {
	m.logger.Info("mail delivery disabled, dropping message",
		zap.String("to", msg.To),
		zap.String("template", msg.Template),
		zap.String("subject", msg.Subject))
	return nil
}
