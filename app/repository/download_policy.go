package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/framefolio/ms-go-downloads/app/entity"
)

var ErrGrantAlreadyExists = errors.New("download grant already exists")

type DownloadPolicyRepository struct {
	db DBTX
}

func NewDownloadPolicyRepository(db DBTX) *DownloadPolicyRepository {
	return &DownloadPolicyRepository{db: db}
}

func (r *DownloadPolicyRepository) FindBySession(ctx context.Context, sessionID string) (*entity.DownloadPolicy, error) {
	query := `
		SELECT session_id, pricing_model, price_per_download_cents,
			free_downloads_allowed, free_downloads_consumed,
			purchased_downloads, purchased_downloads_consumed,
			watermark_enabled, watermark_text, download_enabled,
			created_at, updated_at
		FROM download_policies
		WHERE session_id = ?
		LIMIT 1
	`

	policy := &entity.DownloadPolicy{}
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&policy.SessionID,
		&policy.PricingModel,
		&policy.PricePerDownloadCents,
		&policy.FreeDownloadsAllowed,
		&policy.FreeDownloadsConsumed,
		&policy.PurchasedDownloads,
		&policy.PurchasedDownloadsConsumed,
		&policy.WatermarkEnabled,
		&policy.WatermarkText,
		&policy.DownloadEnabled,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return policy, nil
}

// Save writes the administrative fields of a policy. The consumption counters
// are never part of the duplicate-key update: they only move through their
// conditional statements and SetFreeConsumed, so an admin update racing a
// concurrent consume cannot roll a counter back.
func (r *DownloadPolicyRepository) Save(ctx context.Context, policy *entity.DownloadPolicy) error {
	query := `
		INSERT INTO download_policies (
			session_id, pricing_model, price_per_download_cents,
			free_downloads_allowed, free_downloads_consumed,
			purchased_downloads, purchased_downloads_consumed,
			watermark_enabled, watermark_text, download_enabled,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			pricing_model = VALUES(pricing_model),
			price_per_download_cents = VALUES(price_per_download_cents),
			free_downloads_allowed = VALUES(free_downloads_allowed),
			watermark_enabled = VALUES(watermark_enabled),
			watermark_text = VALUES(watermark_text),
			download_enabled = VALUES(download_enabled),
			updated_at = VALUES(updated_at)
	`

	_, err := r.db.ExecContext(ctx, query,
		policy.SessionID,
		policy.PricingModel,
		policy.PricePerDownloadCents,
		policy.FreeDownloadsAllowed,
		policy.FreeDownloadsConsumed,
		policy.PurchasedDownloads,
		policy.PurchasedDownloadsConsumed,
		policy.WatermarkEnabled,
		policy.WatermarkText,
		policy.DownloadEnabled,
		policy.CreatedAt,
		policy.UpdatedAt,
	)
	return err
}

// SetFreeConsumed overwrites the free-download counter. It backs explicit
// administrative resets only; the download path moves the counter through
// ConsumeFree.
func (r *DownloadPolicyRepository) SetFreeConsumed(ctx context.Context, sessionID string, consumed int32) error {
	query := `
		UPDATE download_policies
		SET free_downloads_consumed = ?,
			updated_at = UTC_TIMESTAMP(6)
		WHERE session_id = ?
	`

	_, err := r.db.ExecContext(ctx, query, consumed, sessionID)
	return err
}

// ConsumeFree increments the free-download counter only while it is below the
// allowance. The guard in the WHERE clause is what keeps two concurrent
// requests from both taking the last slot.
func (r *DownloadPolicyRepository) ConsumeFree(ctx context.Context, sessionID string) (bool, error) {
	query := `
		UPDATE download_policies
		SET free_downloads_consumed = free_downloads_consumed + 1,
			updated_at = UTC_TIMESTAMP(6)
		WHERE session_id = ?
		  AND download_enabled = 1
		  AND free_downloads_consumed < free_downloads_allowed
	`

	result, err := r.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *DownloadPolicyRepository) ConsumePurchased(ctx context.Context, sessionID string) (bool, error) {
	query := `
		UPDATE download_policies
		SET purchased_downloads_consumed = purchased_downloads_consumed + 1,
			updated_at = UTC_TIMESTAMP(6)
		WHERE session_id = ?
		  AND download_enabled = 1
		  AND purchased_downloads_consumed < purchased_downloads
	`

	result, err := r.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// AdmitGrant claims the purchased-download grant for one payment. The primary
// key on payment_id makes the claim atomic; a payment whose grant was already
// claimed gets ErrGrantAlreadyExists.
func (r *DownloadPolicyRepository) AdmitGrant(ctx context.Context, grant *entity.DownloadGrant) error {
	query := `
		INSERT INTO download_grants (payment_id, session_id, quantity, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		grant.PaymentID,
		grant.SessionID,
		grant.Quantity,
		grant.CreatedAt,
	)
	if isDuplicateEntryError(err) {
		return ErrGrantAlreadyExists
	}
	return err
}

// ReleaseGrant drops the grant claim so a redelivery of the payment's event
// can apply the credit after a failure.
func (r *DownloadPolicyRepository) ReleaseGrant(ctx context.Context, paymentID string) error {
	query := `DELETE FROM download_grants WHERE payment_id = ?`
	_, err := r.db.ExecContext(ctx, query, paymentID)
	return err
}

// GrantPurchased adds purchased-download credit, creating a default policy row
// when a payment arrives for a session that has none yet. The default values
// mirror the entity defaults written by Save for a fresh session.
func (r *DownloadPolicyRepository) GrantPurchased(ctx context.Context, policy *entity.DownloadPolicy, quantity int32) error {
	query := `
		INSERT INTO download_policies (
			session_id, pricing_model, price_per_download_cents,
			free_downloads_allowed, free_downloads_consumed,
			purchased_downloads, purchased_downloads_consumed,
			watermark_enabled, watermark_text, download_enabled,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			purchased_downloads = purchased_downloads + VALUES(purchased_downloads),
			updated_at = VALUES(updated_at)
	`

	_, err := r.db.ExecContext(ctx, query,
		policy.SessionID,
		policy.PricingModel,
		policy.PricePerDownloadCents,
		policy.FreeDownloadsAllowed,
		policy.FreeDownloadsConsumed,
		quantity,
		policy.PurchasedDownloadsConsumed,
		policy.WatermarkEnabled,
		policy.WatermarkText,
		policy.DownloadEnabled,
		policy.CreatedAt,
		policy.UpdatedAt,
	)
	return err
}
