package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/notify"
)

var _ notify.SettingsRepo = (*NotifyRepoImpl)(nil)

type NotifyRepoImpl struct {
	db *DB
}

func NewNotifyRepo(db *DB) *NotifyRepoImpl { return &NotifyRepoImpl{db: db} }

const (
	qSMTPGet = `
SELECT instance_id, host, port, security, username, password_protected, from_address
FROM smtp_settings
WHERE instance_id = ?;
`

	qSMTPUpsert = `
INSERT INTO smtp_settings (instance_id, host, port, security, username, password_protected, from_address)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(instance_id) DO UPDATE SET
  host = excluded.host,
  port = excluded.port,
  security = excluded.security,
  username = excluded.username,
  password_protected = excluded.password_protected,
  from_address = excluded.from_address;
`

	qRecipientsList        = `SELECT instance_id, email, enabled FROM recipients WHERE instance_id = ? ORDER BY email;`
	qRecipientsListEnabled = `SELECT instance_id, email, enabled FROM recipients WHERE instance_id = ? AND enabled = 1 ORDER BY email;`

	qRecipientPut = `
INSERT INTO recipients (instance_id, email, enabled)
VALUES (?, ?, ?)
ON CONFLICT(instance_id, email) DO UPDATE SET enabled = excluded.enabled;
`

	qWebhooksList        = `SELECT instance_id, url, enabled FROM webhook_endpoints WHERE instance_id = ? ORDER BY url;`
	qWebhooksListEnabled = `SELECT instance_id, url, enabled FROM webhook_endpoints WHERE instance_id = ? AND enabled = 1 ORDER BY url;`

	qWebhookPut = `
INSERT INTO webhook_endpoints (instance_id, url, enabled)
VALUES (?, ?, ?)
ON CONFLICT(instance_id, url) DO UPDATE SET enabled = excluded.enabled;
`
)

func (r *NotifyRepoImpl) GetSMTP(ctx context.Context, instanceID string) (*notify.SMTPSettings, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		s        notify.SMTPSettings
		security string
		username sql.NullString
		password sql.NullString
	)
	err := r.db.q(ctx).QueryRowContext(ctx, qSMTPGet, instanceID).Scan(
		&s.InstanceID, &s.Host, &s.Port, &security, &username, &password, &s.From,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan smtp settings: %w", err)
	}
	s.Security = notify.SecurityMode(security)
	s.Username = strPtr(username)
	s.PasswordProtected = strPtr(password)
	return &s, nil
}

func (r *NotifyRepoImpl) UpsertSMTP(ctx context.Context, s *notify.SMTPSettings) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.q(ctx).ExecContext(ctx, qSMTPUpsert,
		s.InstanceID, s.Host, s.Port, string(s.Security), nullStr(s.Username), nullStr(s.PasswordProtected), s.From,
	)
	if err != nil {
		return fmt.Errorf("upsert smtp settings: %w", err)
	}
	return nil
}

func (r *NotifyRepoImpl) ListRecipients(ctx context.Context, instanceID string) ([]*notify.Recipient, error) {
	return r.recipients(ctx, qRecipientsList, instanceID)
}

func (r *NotifyRepoImpl) ListEnabledRecipients(ctx context.Context, instanceID string) ([]*notify.Recipient, error) {
	return r.recipients(ctx, qRecipientsListEnabled, instanceID)
}

func (r *NotifyRepoImpl) recipients(ctx context.Context, q, instanceID string) ([]*notify.Recipient, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.q(ctx).QueryContext(ctx, q, instanceID)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	var out []*notify.Recipient
	for rows.Next() {
		var rec notify.Recipient
		if err := rows.Scan(&rec.InstanceID, &rec.Email, &rec.Enabled); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *NotifyRepoImpl) PutRecipient(ctx context.Context, rec *notify.Recipient) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.q(ctx).ExecContext(ctx, qRecipientPut, rec.InstanceID, rec.Email, rec.Enabled)
	if err != nil {
		return fmt.Errorf("put recipient: %w", err)
	}
	return nil
}

func (r *NotifyRepoImpl) ListWebhooks(ctx context.Context, instanceID string) ([]*notify.WebhookEndpoint, error) {
	return r.webhooks(ctx, qWebhooksList, instanceID)
}

func (r *NotifyRepoImpl) ListEnabledWebhooks(ctx context.Context, instanceID string) ([]*notify.WebhookEndpoint, error) {
	return r.webhooks(ctx, qWebhooksListEnabled, instanceID)
}

func (r *NotifyRepoImpl) webhooks(ctx context.Context, q, instanceID string) ([]*notify.WebhookEndpoint, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.q(ctx).QueryContext(ctx, q, instanceID)
	if err != nil {
		return nil, fmt.Errorf("query webhooks: %w", err)
	}
	defer rows.Close()

	var out []*notify.WebhookEndpoint
	for rows.Next() {
		var w notify.WebhookEndpoint
		if err := rows.Scan(&w.InstanceID, &w.URL, &w.Enabled); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		out = append(out, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *NotifyRepoImpl) PutWebhook(ctx context.Context, w *notify.WebhookEndpoint) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.q(ctx).ExecContext(ctx, qWebhookPut, w.InstanceID, w.URL, w.Enabled)
	if err != nil {
		return fmt.Errorf("put webhook: %w", err)
	}
	return nil
}
