// Package mail delivers notification emails through SendGrid.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/config"
)

// Message is a plain-text email to one or more recipients.
type Message struct {
	To       []string
	Subject  string
	Body     string
	Template string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ErrNoRecipients is returned when a message has nobody to go to.
var ErrNoRecipients = errors.New("mail: no recipients")

// NewMailer returns a SendGrid mailer, or a log-only mailer when no API key is configured.
func NewMailer(cfg config.MailConfig, logger *zap.Logger) Mailer {
	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Warn("SENDGRID_API_KEY not provided; emails will only be logged")
		return &logMailer{logger: logger}
	}
	return &sendGridMailer{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		logger: logger,
	}
}

type sendGridMailer struct {
	client *sendgrid.Client
	from   *sgmail.Email
	logger *zap.Logger
}

func (m *sendGridMailer) Send(ctx context.Context, msg Message) error {
	email, err := buildEmail(m.from, msg)
	if err != nil {
		return err
	}
	response, err := m.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}
	m.logger.Info("email sent",
		zap.String("template", msg.Template),
		zap.Int("recipients", len(msg.To)),
		zap.Int("status", response.StatusCode))
	return nil
}

// buildEmail gives each recipient its own personalization so addresses are not shared.
func buildEmail(from *sgmail.Email, msg Message) (*sgmail.SGMailV3, error) {
	recipients := make([]*sgmail.Email, 0, len(msg.To))
	for _, addr := range msg.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, sgmail.NewEmail("", addr))
		}
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	email := sgmail.NewV3Mail()
	email.SetFrom(from)
	email.Subject = msg.Subject
	for _, r := range recipients {
		p := sgmail.NewPersonalization()
		p.AddTos(r)
		email.AddPersonalizations(p)
	}
	email.AddContent(sgmail.NewContent("text/plain", msg.Body))
	return email, nil
}

type logMailer struct {
	logger *zap.Logger
}

func (m *logMailer) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	m.logger.Info("email not sent (mailer disabled)",
		zap.String("template", msg.Template),
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}
