package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"settlement-service/internal/auth"
	"settlement-service/internal/logcontext"
)

type initiator interface {
	Initiate(ctx context.Context, callerUID, rawPaymentID string) (*Checkout, error)
}

// Handler exposes checkout creation over HTTP. Auth is enforced by the
// middleware wrapping it; the uid is read from the request context.
type Handler struct {
	service initiator
	logger  *slog.Logger
}

func NewHandler(service initiator, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type initiateRequest struct {
	PaymentID string `json:"payment_id"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	uid, ok := auth.UIDFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	ctx = logcontext.AppendCtx(ctx, slog.String("uid", uid))

	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.Initiate(ctx, uid, req.PaymentID)
	if err != nil {
		h.logger.WarnContext(ctx, "Checkout initiation failed", "paymentId", req.PaymentID, "error", err)

		switch {
		case errors.Is(err, ErrUnauthenticated):
			writeError(w, http.StatusUnauthorized, "authentication required")
		case errors.Is(err, ErrInvalidPaymentID):
			writeError(w, http.StatusBadRequest, "payment id is missing or malformed")
		case errors.Is(err, ErrPaymentNotFound):
			writeError(w, http.StatusNotFound, "payment not found")
		case errors.Is(err, ErrAlreadyPaid), errors.Is(err, ErrInvalidAmount):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
