package mail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mealflow/mealflow/pkg/action"
	"github.com/mealflow/mealflow/pkg/config"
)

func TestSendDisabledCountsAllRecipients(t *testing.T) {
	mailer := NewSMTPMailer(config.MailConfig{Enabled: false}, zap.NewNop())

	sent, err := mailer.Send(context.Background(),
		action.Message{Template: "weekly_menu", Body: "Hello {{name}}"},
		[]action.Recipient{
			{Name: "Ada", Email: "ada@example.com"},
			{Name: "Grace", Email: "grace@example.com"},
		})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}

func TestSendHonorsContextCancellation(t *testing.T) {
	mailer := NewSMTPMailer(config.MailConfig{Enabled: false}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sent, err := mailer.Send(ctx,
		action.Message{Subject: "hi"},
		[]action.Recipient{{Name: "Ada", Email: "ada@example.com"}})
	assert.Error(t, err)
	assert.Equal(t, 0, sent)
}

func TestMessageSubstitutesNameAndDefaultsSubject(t *testing.T) {
	mailer := NewSMTPMailer(config.MailConfig{From: "ops@mealflow.local"}, zap.NewNop())

	raw := string(mailer.message(
		action.Message{Template: "weekly_menu", Body: "Hello {{name}}, the menu is out."},
		action.Recipient{Name: "Ada", Email: "ada@example.com"}))

	assert.Contains(t, raw, "Subject: weekly_menu")
	assert.Contains(t, raw, "To: ada@example.com")
	assert.Contains(t, raw, "Hello Ada, the menu is out.")
}
