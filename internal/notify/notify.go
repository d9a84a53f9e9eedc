package notify

import (
	"context"

	"solana-fee-ledger-go/internal/models"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Event is a billing lifecycle notification.
type Event struct {
	UserId  string
	Email   string
	Subject string
	Body    string
}

// Notifier delivers billing events to users. Delivery is best effort:
// billing state is the source of truth, notifications never block or fail
// a charge.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// LogNotifier writes events to the log only. The default sink when no
// email provider is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event Event) {
	zap.L().Info("Billing notification",
		zap.String("user_id", event.UserId),
		zap.String("subject", event.Subject),
		zap.String("body", event.Body))
}

// EmailNotifier sends events through SendGrid, fire-and-forget.
type EmailNotifier struct {
	apiKey    string
	fromEmail string
}

func NewEmailNotifier(cfg models.NotifyConfig) *EmailNotifier {
	return &EmailNotifier{
		apiKey:    cfg.SendgridAPIKey,
		fromEmail: cfg.FromEmail,
	}
}

func (n *EmailNotifier) Notify(_ context.Context, event Event) {
	if event.Email == "" {
		zap.L().Warn("No email on file for notification",
			zap.String("user_id", event.UserId),
			zap.String("subject", event.Subject))
		return
	}

	go func() {
		from := mail.NewEmail("Billing", n.fromEmail)
		to := mail.NewEmail("", event.Email)
		message := mail.NewSingleEmail(from, event.Subject, to, event.Body, event.Body)

		response, err := sendgrid.NewSendClient(n.apiKey).Send(message)
		if err != nil {
			zap.L().Error("Failed to send notification email",
				zap.String("user_id", event.UserId),
				zap.Error(err))
			return
		}

		zap.L().Info("Notification email sent",
			zap.String("user_id", event.UserId),
			zap.String("subject", event.Subject),
			zap.Int("status_code", response.StatusCode))
	}()
}

// FromConfig picks the email sink when an API key is configured, the log
// sink otherwise.
func FromConfig(cfg models.NotifyConfig) Notifier {
	if cfg.SendgridAPIKey != "" {
		return NewEmailNotifier(cfg)
	}
	return LogNotifier{}
}
