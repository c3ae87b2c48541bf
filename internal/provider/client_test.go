package provider

import (
	"context"
	"testing"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
)

func newTestClient(t *testing.T) *Client {
	t.Setenv("PROVIDER_API_URL", "http://provider.test")
	t.Setenv("PROVIDER_SECRET_KEY", "sk_test_123")
	return NewClient()
}

func TestClient_CreateCheckoutSession(t *testing.T) {
	tests := []struct {
		name           string
		mockResponse   func()
		expectedError  bool
		expectedErrMsg string
	}{
		{
			name: "Success",
			mockResponse: func() {
				gock.New("http://provider.test").
					Post("/v1/checkout/sessions").
					MatchHeader("Authorization", "Bearer sk_test_123").
					BodyString("amount=4999").
					Reply(200).
					JSON(map[string]string{"id": "cs_123", "url": "https://provider.test/pay/cs_123"})
			},
		},
		{
			name: "Provider error",
			mockResponse: func() {
				gock.New("http://provider.test").
					Post("/v1/checkout/sessions").
					Reply(402).
					JSON(map[string]string{"error": "card_declined"})
			},
			expectedError:  true,
			expectedErrMsg: "402",
		},
		{
			name: "Malformed response",
			mockResponse: func() {
				gock.New("http://provider.test").
					Post("/v1/checkout/sessions").
					Reply(200).
					BodyString("not json")
			},
			expectedError:  true,
			expectedErrMsg: "decoding provider response",
		},
		{
			name: "Response missing session id",
			mockResponse: func() {
				gock.New("http://provider.test").
					Post("/v1/checkout/sessions").
					Reply(200).
					JSON(map[string]string{"url": "https://provider.test/pay/cs_123"})
			},
			expectedError:  true,
			expectedErrMsg: "missing session id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer gock.Off()
			tt.mockResponse()

			client := newTestClient(t)

			session, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionParams{
				AmountMinor: 4999,
				Currency:    "usd",
				SuccessURL:  "https://app.test/success",
				CancelURL:   "https://app.test/cancel",
				Metadata: map[string]string{
					MetadataPaymentID: "8b5a2f0a-6a3e-4f7b-9a64-1f2d3c4b5a69",
				},
			})

			if tt.expectedError {
				assert.Error(t, err)
				if tt.expectedErrMsg != "" {
					assert.Contains(t, err.Error(), tt.expectedErrMsg)
				}
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "cs_123", session.ID)
				assert.Equal(t, "https://provider.test/pay/cs_123", session.URL)
			}
			assert.True(t, gock.IsDone())
		})
	}
}
