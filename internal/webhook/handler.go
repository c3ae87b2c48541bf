package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"settlement-service/internal/logcontext"
	"settlement-service/internal/provider"
	"settlement-service/internal/settlement"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
)

var (
	webhookVerifyFailedCounter = metrics.GetOrCreateCounter(`webhook_total{result="verification_failed"}`)
	webhookIgnoredCounter      = metrics.GetOrCreateCounter(`webhook_total{result="ignored"}`)
	webhookAppliedCounter      = metrics.GetOrCreateCounter(`webhook_total{result="applied"}`)
	webhookErrorCounter        = metrics.GetOrCreateCounter(`webhook_total{result="error"}`)
)

type settlementApplier interface {
	ApplyCheckoutCompleted(ctx context.Context, completed settlement.CompletedCheckout) error
}

// Handler is the provider-facing settlement webhook. The acknowledgement
// contract drives the provider's retry behavior: 2xx stops retries, 4xx marks
// the delivery unprocessable, 5xx makes the provider re-deliver.
type Handler struct {
	verifier   *provider.SignatureVerifier
	reconciler settlementApplier
	logger     *slog.Logger
}

func NewHandler(verifier *provider.SignatureVerifier, reconciler settlementApplier, logger *slog.Logger) *Handler {
	return &Handler{verifier: verifier, reconciler: reconciler, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.ErrorContext(ctx, "Error reading webhook body", "error", err)
		webhookErrorCounter.Inc()
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err := h.verifier.Verify(body, r.Header.Get(provider.SignatureHeader)); err != nil {
		if errors.Is(err, provider.ErrNoSigningSecret) {
			h.logger.ErrorContext(ctx, "Webhook signing secret is not configured", "error", err)
		} else {
			h.logger.WarnContext(ctx, "Webhook signature verification failed", "error", err)
		}
		webhookVerifyFailedCounter.Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var event provider.Event
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.WarnContext(ctx, "Error unmarshalling webhook payload", "error", err)
		webhookVerifyFailedCounter.Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx = logcontext.AppendCtx(ctx, slog.String("eventId", event.ID), slog.String("eventType", event.Type))

	// Unknown event kinds must not fail the handler; acknowledge and drop.
	if event.Type != provider.EventCheckoutCompleted {
		h.logger.InfoContext(ctx, "Ignoring event kind")
		webhookIgnoredCounter.Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	completed, ok := h.toCompletedCheckout(ctx, event)
	if !ok {
		webhookIgnoredCounter.Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.reconciler.ApplyCheckoutCompleted(ctx, completed); err != nil {
		h.logger.ErrorContext(ctx, "Error applying settlement, provider will retry", "error", err)
		webhookErrorCounter.Inc()
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	webhookAppliedCounter.Inc()
	w.WriteHeader(http.StatusOK)
}

// toCompletedCheckout extracts the settlement projection from the event. An
// event without a usable payment reference is unexpected but not retryable;
// the caller acknowledges it without writes.
func (h *Handler) toCompletedCheckout(ctx context.Context, event provider.Event) (settlement.CompletedCheckout, bool) {
	session := event.Data.Object

	rawPaymentID, ok := session.Metadata[provider.MetadataPaymentID]
	if !ok || rawPaymentID == "" {
		h.logger.WarnContext(ctx, "Completed checkout event has no payment id metadata, acknowledging without writes",
			"sessionId", session.ID)
		return settlement.CompletedCheckout{}, false
	}

	paymentID, err := uuid.Parse(rawPaymentID)
	if err != nil {
		h.logger.WarnContext(ctx, "Completed checkout event has malformed payment id metadata, acknowledging without writes",
			"sessionId", session.ID, "paymentId", rawPaymentID)
		return settlement.CompletedCheckout{}, false
	}

	completed := settlement.CompletedCheckout{
		SessionID:   session.ID,
		PaymentID:   paymentID,
		CompletedAt: time.Now(),
	}

	if raw, ok := session.Metadata[provider.MetadataInvoiceID]; ok && raw != "" {
		if invoiceID, err := uuid.Parse(raw); err == nil {
			completed.InvoiceID = &invoiceID
		}
	}
	if session.PaymentIntent != "" {
		completed.PaymentIntentID = &session.PaymentIntent
	}
	if session.Customer != "" {
		completed.CustomerID = &session.Customer
	}

	return completed, true
}
