package auth

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
)

func TestVerifier_Middleware(t *testing.T) {
	tests := []struct {
		name           string
		authorization  string
		mockResponse   func()
		expectedStatus int
		expectedUID    string
	}{
		{
			name:          "valid token",
			authorization: "Bearer token-1",
			mockResponse: func() {
				gock.New("http://auth.test").
					Get("/verify").
					MatchHeader("Authorization", "Bearer token-1").
					Reply(200).
					JSON(map[string]string{"uid": "8b5a2f0a-6a3e-4f7b-9a64-1f2d3c4b5a69"})
			},
			expectedStatus: http.StatusOK,
			expectedUID:    "8b5a2f0a-6a3e-4f7b-9a64-1f2d3c4b5a69",
		},
		{
			name:           "missing header",
			authorization:  "",
			mockResponse:   func() {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:          "rejected token",
			authorization: "Bearer bad-token",
			mockResponse: func() {
				gock.New("http://auth.test").
					Get("/verify").
					Reply(401).
					JSON(map[string]string{"error": "invalid token"})
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:          "verification response without uid",
			authorization: "Bearer token-2",
			mockResponse: func() {
				gock.New("http://auth.test").
					Get("/verify").
					Reply(200).
					JSON(map[string]string{})
			},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer gock.Off()
			tt.mockResponse()

			t.Setenv("AUTH_VERIFY_URL", "http://auth.test/verify")
			verifier := NewVerifier(slog.Default())

			var gotUID string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUID, _ = UIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			rec := httptest.NewRecorder()

			verifier.Middleware(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedUID != "" {
				assert.Equal(t, tt.expectedUID, gotUID)
			}
		})
	}
}
