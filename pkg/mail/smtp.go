// Package mail is the email-send side of the action boundary. The SMTP
// implementation sits behind action.Mailer so tests and the disabled mode
// swap in without touching handlers.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/mealflow/mealflow/pkg/action"
	"github.com/mealflow/mealflow/pkg/config"
)

type SMTPMailer struct {
	cfg    config.MailConfig
	logger *zap.Logger
}

func NewSMTPMailer(cfg config.MailConfig, logger *zap.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, logger: logger}
}

// Send delivers the message to each recipient in turn and returns the number
// sent. The first transport error stops the send; the count of messages
// delivered before it is still reported.
func (m *SMTPMailer) Send(ctx context.Context, msg action.Message, recipients []action.Recipient) (int, error) {
	sent := 0
	for _, recipient := range recipients {
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		default:
		}

		if !m.cfg.Enabled {
			m.logger.Info("mail disabled, skipping delivery",
				zap.String("to", recipient.Email),
				zap.String("subject", msg.Subject),
				zap.String("template", msg.Template))
			sent++
			continue
		}

		if err := m.send(msg, recipient); err != nil {
			return sent, fmt.Errorf("deliver to %s: %w", recipient.Email, err)
		}
		sent++
	}
	return sent, nil
}

func (m *SMTPMailer) send(msg action.Message, recipient action.Recipient) error {
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	return smtp.SendMail(addr, auth, m.cfg.From, []string{recipient.Email}, m.message(msg, recipient))
}

func (m *SMTPMailer) message(msg action.Message, recipient action.Recipient) []byte {
	subject := msg.Subject
	if subject == "" {
		subject = msg.Template
	}

	body := strings.NewReplacer("{{name}}", recipient.Name).Replace(msg.Body)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", recipient.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
