package settlement

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"settlement-service/internal/db"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

var (
	settlementAppliedCounter     = metrics.GetOrCreateCounter(`settlement_total{result="applied"}`)
	settlementAlreadyPaidCounter = metrics.GetOrCreateCounter(`settlement_total{result="already_paid"}`)
	settlementMissingCounter     = metrics.GetOrCreateCounter(`settlement_total{result="payment_missing"}`)
	settlementErrorCounter       = metrics.GetOrCreateCounter(`settlement_total{result="error"}`)

	settlementDurationHistogram = metrics.GetOrCreateHistogram(`settlement_duration_milliseconds`)
)

// CompletedCheckout is the internal projection of a verified
// checkout-completed event.
type CompletedCheckout struct {
	SessionID       string
	PaymentID       uuid.UUID
	InvoiceID       *uuid.UUID
	PaymentIntentID *string
	CustomerID      *string
	CompletedAt     time.Time
}

// Reconciler applies settlement events to payment, invoice and session state.
// The whole application is one transaction that re-reads the payment status
// under a row lock, so duplicate deliveries of the same event collapse into a
// single unpaid-to-paid transition.
type Reconciler struct {
	repo   *db.SettlementRepository
	logger *slog.Logger
}

func NewReconciler(repo *db.SettlementRepository, logger *slog.Logger) *Reconciler {
	return &Reconciler{repo: repo, logger: logger}
}

// ApplyCheckoutCompleted settles the payment referenced by the event. A nil
// return means the delivery is fully acknowledged, including the no-op cases
// (unknown payment, already paid). A non-nil return means the caller must
// signal a retryable failure; re-running from scratch is safe.
func (r *Reconciler) ApplyCheckoutCompleted(ctx context.Context, completed CompletedCheckout) error {
	startTime := time.Now()

	tx, err := r.repo.BeginTx(ctx)
	if err != nil {
		settlementErrorCounter.Inc()
		return errors.Wrap(err, "starting settlement transaction")
	}
	defer tx.Rollback(ctx)

	payment, err := r.repo.SelectPaymentForUpdate(ctx, tx, completed.PaymentID)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Settlement event references unknown payment, acknowledging without writes",
				"paymentId", completed.PaymentID.String(), "sessionId", completed.SessionID)
			settlementMissingCounter.Inc()
			return nil
		}
		settlementErrorCounter.Inc()
		return errors.Wrap(err, "locking payment for settlement")
	}

	if payment.Status == db.PaymentStatusPaid {
		r.logger.InfoContext(ctx, "Payment already settled, duplicate delivery is a no-op",
			"paymentId", payment.ID.String(), "sessionId", completed.SessionID)
		settlementAlreadyPaidCounter.Inc()
		return nil
	}

	if err := r.repo.CompleteCheckoutSession(ctx, tx, completed.SessionID,
		completed.PaymentIntentID, completed.CustomerID, completed.CompletedAt); err != nil {
		settlementErrorCounter.Inc()
		return err
	}

	if err := r.repo.MarkPaymentPaid(ctx, tx, payment.ID, completed.SessionID,
		completed.PaymentIntentID, completed.CompletedAt); err != nil {
		settlementErrorCounter.Inc()
		return err
	}

	invoiceID := completed.InvoiceID
	if invoiceID == nil {
		invoiceID = payment.InvoiceID
	}
	if invoiceID != nil {
		if err := r.repo.MarkInvoicePaid(ctx, tx, *invoiceID, completed.SessionID,
			completed.PaymentIntentID, completed.CompletedAt); err != nil {
			settlementErrorCounter.Inc()
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		settlementErrorCounter.Inc()
		return errors.Wrap(err, "committing settlement transaction")
	}

	r.logger.InfoContext(ctx, "Settled payment",
		"paymentId", payment.ID.String(), "sessionId", completed.SessionID)

	settlementAppliedCounter.Inc()
	settlementDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))

	return nil
}
