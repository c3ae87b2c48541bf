package checkout

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"settlement-service/internal/config"
	"settlement-service/internal/db"
	"settlement-service/internal/provider"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

var (
	ErrUnauthenticated  = stderrors.New("caller is not authenticated")
	ErrInvalidPaymentID = stderrors.New("payment id is missing or malformed")
	ErrPaymentNotFound  = stderrors.New("payment not found")
	ErrAlreadyPaid      = stderrors.New("payment is already paid")
	ErrInvalidAmount    = stderrors.New("payment amount does not normalize to positive minor units")
)

var (
	checkoutCreatedCounter     = metrics.GetOrCreateCounter(`checkout_initiate_total{result="created"}`)
	checkoutRejectedCounter    = metrics.GetOrCreateCounter(`checkout_initiate_total{result="rejected"}`)
	checkoutProviderErrCounter = metrics.GetOrCreateCounter(`checkout_initiate_total{result="provider_error"}`)
	checkoutStoreErrCounter    = metrics.GetOrCreateCounter(`checkout_initiate_total{result="store_error"}`)
	checkoutDurationHistogram  = metrics.GetOrCreateHistogram(`checkout_initiate_duration_milliseconds`)
)

const defaultCurrencyFallback = "usd"

type sessionCreator interface {
	CreateCheckoutSession(ctx context.Context, params provider.CheckoutSessionParams) (*provider.CheckoutSession, error)
}

// Service creates provider checkout sessions for outstanding payments and
// records them in the session ledger. It never mutates payment or invoice
// state; settlement happens only on confirmed payment.
type Service struct {
	repo            *db.SettlementRepository
	provider        sessionCreator
	defaultCurrency string
	successURL      string
	cancelURL       string
	logger          *slog.Logger
}

func NewService(repo *db.SettlementRepository, sessions sessionCreator, logger *slog.Logger) *Service {
	return &Service{
		repo:            repo,
		provider:        sessions,
		defaultCurrency: config.Get("DEFAULT_CURRENCY", defaultCurrencyFallback),
		successURL:      config.GetRequired("CHECKOUT_SUCCESS_URL"),
		cancelURL:       config.GetRequired("CHECKOUT_CANCEL_URL"),
		logger:          logger,
	}
}

type Checkout struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

func (s *Service) Initiate(ctx context.Context, callerUID, rawPaymentID string) (*Checkout, error) {
	startTime := time.Now()

	if strings.TrimSpace(callerUID) == "" {
		checkoutRejectedCounter.Inc()
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(rawPaymentID) == "" {
		checkoutRejectedCounter.Inc()
		return nil, errors.Wrap(ErrInvalidPaymentID, "empty payment id")
	}

	paymentID, err := uuid.Parse(rawPaymentID)
	if err != nil {
		checkoutRejectedCounter.Inc()
		return nil, errors.Wrapf(ErrInvalidPaymentID, "parsing %q", rawPaymentID)
	}

	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			checkoutRejectedCounter.Inc()
			return nil, errors.Wrapf(ErrPaymentNotFound, "payment %s", paymentID)
		}
		checkoutStoreErrCounter.Inc()
		return nil, errors.Wrap(err, "reading payment")
	}

	if payment.Status == db.PaymentStatusPaid {
		checkoutRejectedCounter.Inc()
		return nil, errors.Wrapf(ErrAlreadyPaid, "payment %s", paymentID)
	}

	amountMinor, err := MinorUnits(payment.Amount)
	if err != nil {
		checkoutRejectedCounter.Inc()
		return nil, err
	}

	currency := s.defaultCurrency
	if payment.Currency != nil && *payment.Currency != "" {
		currency = *payment.Currency
	}

	studentID := payment.UserID
	if studentID == uuid.Nil {
		parsed, err := uuid.Parse(callerUID)
		if err != nil {
			checkoutRejectedCounter.Inc()
			return nil, errors.Wrapf(ErrUnauthenticated, "caller uid %q", callerUID)
		}
		studentID = parsed
	}

	metadata := map[string]string{
		provider.MetadataPaymentID: paymentID.String(),
		provider.MetadataStudentID: studentID.String(),
	}
	if payment.InvoiceID != nil {
		metadata[provider.MetadataInvoiceID] = payment.InvoiceID.String()
	}

	session, err := s.provider.CreateCheckoutSession(ctx, provider.CheckoutSessionParams{
		AmountMinor: amountMinor,
		Currency:    currency,
		SuccessURL:  s.successURL,
		CancelURL:   s.cancelURL,
		Metadata:    metadata,
	})
	if err != nil {
		checkoutProviderErrCounter.Inc()
		return nil, errors.Wrap(err, "creating provider checkout session")
	}

	entity := &db.CheckoutSessionEntity{
		ID:          session.ID,
		PaymentID:   paymentID,
		InvoiceID:   payment.InvoiceID,
		StudentID:   studentID,
		Status:      db.SessionStatusCreated,
		CheckoutURL: session.URL,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.UpsertCheckoutSession(ctx, entity); err != nil {
		checkoutStoreErrCounter.Inc()
		return nil, err
	}

	s.logger.InfoContext(ctx, "Created checkout session",
		"sessionId", session.ID, "paymentId", paymentID.String(), "amountMinor", amountMinor, "currency", currency)

	checkoutCreatedCounter.Inc()
	checkoutDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))

	return &Checkout{SessionID: session.ID, CheckoutURL: session.URL}, nil
}
