package mail

import (
	"context"
	"testing"

	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/config"
)

func TestBuildEmail(t *testing.T) {
	from := sgmail.NewEmail("Ticket Desk", "noreply@example.com")

	email, err := buildEmail(from, Message{
		To:      []string{"a@example.com", " ", "b@example.com"},
		Subject: "New ticket",
		Body:    "TCK-1 was opened",
	})
	require.NoError(t, err)

	assert.Equal(t, "New ticket", email.Subject)
	assert.Equal(t, "noreply@example.com", email.From.Address)
	require.Len(t, email.Personalizations, 2)
	assert.Equal(t, "a@example.com", email.Personalizations[0].To[0].Address)
	assert.Equal(t, "b@example.com", email.Personalizations[1].To[0].Address)
	require.Len(t, email.Content, 1)
	assert.Equal(t, "text/plain", email.Content[0].Type)
	assert.Equal(t, "TCK-1 was opened", email.Content[0].Value)
}

func TestBuildEmailWithoutRecipients(t *testing.T) {
	_, err := buildEmail(sgmail.NewEmail("", "noreply@example.com"), Message{To: []string{""}})
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestNewMailerWithoutKeyLogsOnly(t *testing.T) {
	m := NewMailer(config.MailConfig{}, zap.NewNop())

	_, isLog := m.(*logMailer)
	assert.True(t, isLog)
	assert.NoError(t, m.Send(context.Background(), Message{To: []string{"a@example.com"}}))
	assert.ErrorIs(t, m.Send(context.Background(), Message{}), ErrNoRecipients)
}

func TestNewMailerWithKey(t *testing.T) {
	m := NewMailer(config.MailConfig{APIKey: "SG.test", FromAddress: "noreply@example.com"}, zap.NewNop())

	_, isSendGrid := m.(*sendGridMailer)
	assert.True(t, isSendGrid)
}
