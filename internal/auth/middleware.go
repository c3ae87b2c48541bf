package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"settlement-service/internal/config"
)

const defaultTimeoutMs = 5_000

type ctxKey struct{}

var uidKey ctxKey

// UIDFromContext returns the authenticated caller uid placed by Middleware.
func UIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(uidKey).(string)
	return uid, ok && uid != ""
}

// ContextWithUID is a test seam for handlers behind the middleware.
func ContextWithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, uidKey, uid)
}

// Verifier delegates bearer-token verification to the auth service and
// stashes the resolved uid in the request context.
type Verifier struct {
	client    *http.Client
	verifyURL string
	logger    *slog.Logger
}

func NewVerifier(logger *slog.Logger) *Verifier {
	timeout := time.Duration(config.GetInt("AUTH_TIMEOUT_MS", defaultTimeoutMs)) * time.Millisecond
	return &Verifier{
		client:    &http.Client{Timeout: timeout},
		verifyURL: config.GetRequired("AUTH_VERIFY_URL"),
		logger:    logger,
	}
}

func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := r.Header.Get("Authorization")
		if authorization == "" {
			unauthorized(w)
			return
		}

		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, v.verifyURL, nil)
		if err != nil {
			v.logger.ErrorContext(r.Context(), "Error building auth verification request", "error", err)
			unauthorized(w)
			return
		}
		req.Header.Set("Authorization", authorization)

		resp, err := v.client.Do(req)
		if err != nil {
			v.logger.WarnContext(r.Context(), "Auth verification call failed", "error", err)
			unauthorized(w)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			unauthorized(w)
			return
		}

		var identity struct {
			UID string `json:"uid"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil || identity.UID == "" {
			v.logger.WarnContext(r.Context(), "Auth verification returned no uid", "error", err)
			unauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUID(r.Context(), identity.UID)))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
}
