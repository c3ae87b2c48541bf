package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// SettlementRepository owns the payment, invoice and checkout_session tables.
// All settlement mutations go through an explicit transaction so the status
// check and the writes share one atomic scope.
type SettlementRepository struct {
	pool *pgxpool.Pool
}

func NewSettlementRepository(pool *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{pool: pool}
}

func (r *SettlementRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *SettlementRepository) CreatePayment(ctx context.Context, entity *PaymentEntity) error {
	query := `INSERT INTO payment (id, user_id, invoice_id, amount, currency, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query, entity.ID, entity.UserID, entity.InvoiceID, entity.Amount,
		entity.Currency, entity.Status, entity.CreatedAt, entity.UpdatedAt)
	return errors.Wrap(err, "inserting payment")
}

func (r *SettlementRepository) CreateInvoice(ctx context.Context, entity *InvoiceEntity) error {
	query := `INSERT INTO invoice (id, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, entity.ID, entity.Status, entity.CreatedAt, entity.UpdatedAt)
	return errors.Wrap(err, "inserting invoice")
}

func (r *SettlementRepository) GetPayment(ctx context.Context, id uuid.UUID) (*PaymentEntity, error) {
	query := `SELECT id, user_id, invoice_id, amount, currency, status, checkout_session_id,
	                 payment_intent_id, paid_at, created_at, updated_at
	          FROM payment WHERE id = $1`
	return scanPayment(r.pool.QueryRow(ctx, query, id))
}

// SelectPaymentForUpdate locks the payment row for the duration of the
// transaction. Concurrent settlement attempts for the same payment serialize
// here.
func (r *SettlementRepository) SelectPaymentForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*PaymentEntity, error) {
	query := `SELECT id, user_id, invoice_id, amount, currency, status, checkout_session_id,
	                 payment_intent_id, paid_at, created_at, updated_at
	          FROM payment WHERE id = $1 FOR UPDATE`
	return scanPayment(tx.QueryRow(ctx, query, id))
}

func (r *SettlementRepository) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSessionEntity, error) {
	query := `SELECT id, payment_id, invoice_id, student_id, status, checkout_url,
	                 payment_intent_id, customer_id, created_at, completed_at
	          FROM checkout_session WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)

	var entity CheckoutSessionEntity
	err := row.Scan(&entity.ID, &entity.PaymentID, &entity.InvoiceID, &entity.StudentID, &entity.Status,
		&entity.CheckoutURL, &entity.PaymentIntentID, &entity.CustomerID, &entity.CreatedAt, &entity.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *SettlementRepository) GetInvoice(ctx context.Context, id uuid.UUID) (*InvoiceEntity, error) {
	query := `SELECT id, status, checkout_session_id, payment_intent_id, paid_at, created_at, updated_at
	          FROM invoice WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)

	var entity InvoiceEntity
	err := row.Scan(&entity.ID, &entity.Status, &entity.CheckoutSessionID, &entity.PaymentIntentID,
		&entity.PaidAt, &entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// UpsertCheckoutSession merges a ledger row keyed by the provider-issued
// session id. A retry of the same session updates the mutable fields but
// never touches status or completed_at, which belong to settlement.
func (r *SettlementRepository) UpsertCheckoutSession(ctx context.Context, entity *CheckoutSessionEntity) error {
	query := `INSERT INTO checkout_session (id, payment_id, invoice_id, student_id, status, checkout_url, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (id) DO UPDATE SET
	              payment_id = EXCLUDED.payment_id,
	              invoice_id = EXCLUDED.invoice_id,
	              student_id = EXCLUDED.student_id,
	              checkout_url = EXCLUDED.checkout_url`
	_, err := r.pool.Exec(ctx, query, entity.ID, entity.PaymentID, entity.InvoiceID, entity.StudentID,
		entity.Status, entity.CheckoutURL, entity.CreatedAt)
	return errors.Wrap(err, "upserting checkout session")
}

func (r *SettlementRepository) CompleteCheckoutSession(ctx context.Context, tx pgx.Tx, id string,
	paymentIntentID, customerID *string, completedAt time.Time) error {
	query := `UPDATE checkout_session SET
	              status = $2,
	              payment_intent_id = COALESCE($3, payment_intent_id),
	              customer_id = COALESCE($4, customer_id),
	              completed_at = $5
	          WHERE id = $1`
	_, err := tx.Exec(ctx, query, id, SessionStatusCompleted, paymentIntentID, customerID, completedAt)
	return errors.Wrap(err, "completing checkout session")
}

func (r *SettlementRepository) MarkPaymentPaid(ctx context.Context, tx pgx.Tx, id uuid.UUID,
	sessionID string, paymentIntentID *string, paidAt time.Time) error {
	query := `UPDATE payment SET
	              status = $2,
	              checkout_session_id = $3,
	              payment_intent_id = COALESCE($4, payment_intent_id),
	              paid_at = $5,
	              updated_at = $5
	          WHERE id = $1`
	_, err := tx.Exec(ctx, query, id, PaymentStatusPaid, sessionID, paymentIntentID, paidAt)
	return errors.Wrap(err, "marking payment paid")
}

func (r *SettlementRepository) MarkInvoicePaid(ctx context.Context, tx pgx.Tx, id uuid.UUID,
	sessionID string, paymentIntentID *string, paidAt time.Time) error {
	query := `UPDATE invoice SET
	              status = $2,
	              checkout_session_id = $3,
	              payment_intent_id = COALESCE($4, payment_intent_id),
	              paid_at = $5,
	              updated_at = $5
	          WHERE id = $1`
	_, err := tx.Exec(ctx, query, id, InvoiceStatusPaid, sessionID, paymentIntentID, paidAt)
	return errors.Wrap(err, "marking invoice paid")
}

func scanPayment(row pgx.Row) (*PaymentEntity, error) {
	var entity PaymentEntity
	err := row.Scan(&entity.ID, &entity.UserID, &entity.InvoiceID, &entity.Amount, &entity.Currency,
		&entity.Status, &entity.CheckoutSessionID, &entity.PaymentIntentID, &entity.PaidAt,
		&entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}
