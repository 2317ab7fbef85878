package notify

import (
	"context"
	"time"
)

type SettingsRepo interface {
	GetSMTP(ctx context.Context, instanceID string) (*SMTPSettings, error)
	UpsertSMTP(ctx context.Context, s *SMTPSettings) error
	ListRecipients(ctx context.Context, instanceID string) ([]*Recipient, error)
	ListEnabledRecipients(ctx context.Context, instanceID string) ([]*Recipient, error)
	PutRecipient(ctx context.Context, r *Recipient) error
	ListWebhooks(ctx context.Context, instanceID string) ([]*WebhookEndpoint, error)
	ListEnabledWebhooks(ctx context.Context, instanceID string) ([]*WebhookEndpoint, error)
	PutWebhook(ctx context.Context, w *WebhookEndpoint) error
}

type EmailSender interface {
	Send(ctx context.Context, s *SMTPSettings, password string, to string, msg *Message) error
}

type WebhookSender interface {
	Send(ctx context.Context, url string, p *Payload) error
}

// Protector encrypts secrets at rest, scoped by a constant purpose string.
// The only contract is that Unprotect recovers what Protect produced.
type Protector interface {
	Protect(plain string) (string, error)
	Unprotect(opaque string) (string, error)
}

type Clock interface {
	Now() time.Time
}
