package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/repository/base"
)

type paymentRepository struct {
	db base.DBTX
}

func NewPaymentRepository(db base.DBTX) PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, package_id, amount_cents, reference, status, verified_by, verified_at, created_at`

// Create создаёт запись об оплате; на пакет допускается одна оплата
func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	query := `
		INSERT INTO payments (package_id, amount_cents, reference, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		payment.PackageID,
		payment.AmountCents,
		payment.Reference,
		payment.Status,
	).Scan(&payment.ID, &payment.CreatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("create payment: %w", ErrDuplicate)
		}
		return fmt.Errorf("create payment: %w", err)
	}

	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id int64) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	payment, err := scanPayment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by id: %w", err)
	}

	return payment, nil
}

func (r *paymentRepository) GetByPackageID(ctx context.Context, packageID int64) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE package_id = $1`

	payment, err := scanPayment(r.db.QueryRow(ctx, query, packageID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by package id: %w", err)
	}

	return payment, nil
}

// MarkPaid подтверждает оплату (только из pending)
func (r *paymentRepository) MarkPaid(ctx context.Context, id, verifiedBy int64, at time.Time) error {
	return r.resolve(ctx, id, model.PaymentStatusPaid, verifiedBy, at)
}

// Reject отклоняет оплату (только из pending)
func (r *paymentRepository) Reject(ctx context.Context, id, verifiedBy int64, at time.Time) error {
	return r.resolve(ctx, id, model.PaymentStatusRejected, verifiedBy, at)
}

func (r *paymentRepository) resolve(ctx context.Context, id int64, to model.PaymentStatus, verifiedBy int64, at time.Time) error {
	query := `
		UPDATE payments
		SET status = $1, verified_by = $2, verified_at = $3
		WHERE id = $4 AND status = 'pending'
	`

	affected, err := base.ExecAffected(ctx, r.db, query, to, verifiedBy, at, id)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("payment %d to %s: %w", id, to, ErrStatusConflict)
	}

	return nil
}

func scanPayment(row rowScanner) (*model.Payment, error) {
	var payment model.Payment
	err := row.Scan(
		&payment.ID,
		&payment.PackageID,
		&payment.AmountCents,
		&payment.Reference,
		&payment.Status,
		&payment.VerifiedBy,
		&payment.VerifiedAt,
		&payment.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
