package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/framefolio/ms-go-downloads/app/entity"
	"github.com/framefolio/ms-go-downloads/app/types"
)

var ErrPaymentAlreadyExists = errors.New("payment already exists")

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (
			payment_id, session_id, kind,
			amount_total_cents, base_cents, tip_cents,
			status, photographer_account_id, customer_email,
			created_at, completed_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.PaymentID,
		payment.SessionID,
		payment.Kind,
		payment.AmountTotalCents,
		payment.BaseCents,
		payment.TipCents,
		payment.Status,
		payment.PhotographerAccountID,
		nullableStringValue(payment.CustomerEmail),
		payment.CreatedAt,
		nullableTimeValue(payment.CompletedAt),
		payment.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

func (r *PaymentRepository) FindByPaymentID(ctx context.Context, paymentID string) (*entity.Payment, error) {
	query := `
		SELECT id, payment_id, session_id, kind,
			amount_total_cents, base_cents, tip_cents,
			status, photographer_account_id, customer_email,
			created_at, completed_at, updated_at
		FROM payments
		WHERE payment_id = ?
		LIMIT 1
	`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, paymentID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

// MarkCompleted transitions a pending payment to the given terminal status.
// The status guard in the WHERE clause keeps the transition one-way; zero rows
// affected means the record already left pending and the call is a no-op.
func (r *PaymentRepository) MarkCompleted(ctx context.Context, payment *entity.Payment, status int32, now time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET status = ?,
			amount_total_cents = ?,
			base_cents = ?,
			tip_cents = ?,
			customer_email = COALESCE(?, customer_email),
			completed_at = ?,
			updated_at = ?
		WHERE payment_id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		status,
		payment.AmountTotalCents,
		payment.BaseCents,
		payment.TipCents,
		nullableStringValue(payment.CustomerEmail),
		now,
		now,
		payment.PaymentID,
		types.PaymentStatusPending,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PaymentRepository) ListBySession(ctx context.Context, sessionID string) ([]*entity.Payment, error) {
	query := `
		SELECT id, payment_id, session_id, kind,
			amount_total_cents, base_cents, tip_cents,
			status, photographer_account_id, customer_email,
			created_at, completed_at, updated_at
		FROM payments
		WHERE session_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item := &entity.Payment{}
		if err := scanPayment(rows, item); err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

func (r *PaymentRepository) TotalPaid(ctx context.Context, sessionID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount_total_cents), 0)
		FROM payments
		WHERE session_id = ? AND status = ?
	`

	var total int64
	if err := r.db.QueryRowContext(ctx, query, sessionID, types.PaymentStatusPaid).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var customerEmail sql.NullString
	var completedAt sql.NullTime

	err := scan.Scan(
		&payment.ID,
		&payment.PaymentID,
		&payment.SessionID,
		&payment.Kind,
		&payment.AmountTotalCents,
		&payment.BaseCents,
		&payment.TipCents,
		&payment.Status,
		&payment.PhotographerAccountID,
		&customerEmail,
		&payment.CreatedAt,
		&completedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.CustomerEmail = stringPtrFromNull(customerEmail)
	payment.CompletedAt = timePtrFromNull(completedAt)

	return nil
}
