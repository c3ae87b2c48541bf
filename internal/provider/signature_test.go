package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testSecret = "whsec_test_secret"

func testVerifier(secret string, now time.Time) *SignatureVerifier {
	return &SignatureVerifier{
		secret:    secret,
		tolerance: 5 * time.Minute,
		now:       func() time.Time { return now },
	}
}

func TestSignatureVerifier_Verify(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	tests := []struct {
		name          string
		secret        string
		payload       []byte
		header        string
		expectedError error
	}{
		{
			name:    "valid signature",
			secret:  testSecret,
			payload: payload,
			header:  ComputeSignature(testSecret, now, payload),
		},
		{
			name:          "missing header",
			secret:        testSecret,
			payload:       payload,
			header:        "",
			expectedError: ErrMissingSignature,
		},
		{
			name:          "no signing secret configured",
			secret:        "",
			payload:       payload,
			header:        ComputeSignature(testSecret, now, payload),
			expectedError: ErrNoSigningSecret,
		},
		{
			name:          "tampered payload",
			secret:        testSecret,
			payload:       []byte(`{"id":"evt_1","type":"tampered"}`),
			header:        ComputeSignature(testSecret, now, payload),
			expectedError: ErrInvalidSignature,
		},
		{
			name:          "wrong secret",
			secret:        testSecret,
			payload:       payload,
			header:        ComputeSignature("whsec_other", now, payload),
			expectedError: ErrInvalidSignature,
		},
		{
			name:          "expired timestamp",
			secret:        testSecret,
			payload:       payload,
			header:        ComputeSignature(testSecret, now.Add(-10*time.Minute), payload),
			expectedError: ErrSignatureExpired,
		},
		{
			name:          "timestamp too far in the future",
			secret:        testSecret,
			payload:       payload,
			header:        ComputeSignature(testSecret, now.Add(10*time.Minute), payload),
			expectedError: ErrSignatureExpired,
		},
		{
			name:          "malformed header",
			secret:        testSecret,
			payload:       payload,
			header:        "not-a-signature",
			expectedError: ErrInvalidSignature,
		},
		{
			name:          "missing v1 component",
			secret:        testSecret,
			payload:       payload,
			header:        "t=1700000000",
			expectedError: ErrInvalidSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := testVerifier(tt.secret, now)

			err := verifier.Verify(tt.payload, tt.header)
			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSignatureVerifier_AcceptsAnyValidV1(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_2"}`)

	valid := ComputeSignature(testSecret, now, payload)
	header := valid + ",v1=deadbeef"

	verifier := testVerifier(testSecret, now)
	assert.NoError(t, verifier.Verify(payload, header))
}
