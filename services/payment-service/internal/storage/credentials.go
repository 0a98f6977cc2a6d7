package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Credentials are the admin's payment-provider secrets, sealed before they
// reach this layer. WebhookSecret may be empty (signature checks skipped).
type Credentials struct {
	AdminID             string
	Provider            string
	AccessTokenSealed   []byte
	WebhookSecretSealed []byte
	Enabled             bool
	UpdatedAt           time.Time
}

func (r *Repository) UpsertCredentials(ctx context.Context, tx pgx.Tx, c Credentials) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payment_credentials (admin_id, provider, access_token, webhook_secret, enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (admin_id)
		DO UPDATE SET provider = EXCLUDED.provider,
		              access_token = EXCLUDED.access_token,
		              webhook_secret = EXCLUDED.webhook_secret,
		              enabled = EXCLUDED.enabled,
		              updated_at = now()
	`, c.AdminID, c.Provider, c.AccessTokenSealed, nullIfEmptyBytes(c.WebhookSecretSealed), c.Enabled)
	return err
}

func (r *Repository) GetCredentials(ctx context.Context, adminID string) (Credentials, error) {
	var c Credentials
	var webhookSecret []byte
	err := r.pool.QueryRow(ctx, `
		SELECT admin_id::text, provider, access_token, webhook_secret, enabled, updated_at
		FROM payment_credentials
		WHERE admin_id = $1
	`, adminID).Scan(&c.AdminID, &c.Provider, &c.AccessTokenSealed, &webhookSecret, &c.Enabled, &c.UpdatedAt)
	if err != nil {
		return Credentials{}, err
	}
	c.WebhookSecretSealed = webhookSecret
	return c, nil
}

func nullIfEmptyBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
