package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"settlement-service/internal/config"
)

// SignatureHeader carries the provider's webhook signature:
// "t=<unix seconds>,v1=<hex hmac>". The signed payload is "<t>.<raw body>".
const SignatureHeader = "X-Provider-Signature"

const defaultToleranceSec = 300

var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrNoSigningSecret  = errors.New("webhook signing secret is not configured")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrSignatureExpired = errors.New("signature timestamp outside tolerance")
)

// SignatureVerifier checks webhook payload authenticity with the shared
// signing secret. A missing secret is an operator error and is reported
// distinctly from a bad signature.
type SignatureVerifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	tolerance := time.Duration(config.GetInt("WEBHOOK_TOLERANCE_SEC", defaultToleranceSec)) * time.Second
	return &SignatureVerifier{
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
	}
}

func (v *SignatureVerifier) Verify(payload []byte, header string) error {
	if header == "" {
		return ErrMissingSignature
	}
	if v.secret == "" {
		return ErrNoSigningSecret
	}

	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return ErrSignatureExpired
	}

	expected := computeHMAC(v.secret, timestamp, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return ErrInvalidSignature
}

// ComputeSignature builds a full signature header value for the given payload.
// Used by tests and by the local provider simulator.
func ComputeSignature(secret string, t time.Time, payload []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", t.Unix(), computeHMAC(secret, t.Unix(), payload))
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var timestamp int64 = -1
	var signatures []string

	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "t":
			parsed, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return 0, nil, ErrInvalidSignature
			}
			timestamp = parsed
		case "v1":
			signatures = append(signatures, parts[1])
		}
	}

	if timestamp < 0 || len(signatures) == 0 {
		return 0, nil, ErrInvalidSignature
	}
	return timestamp, signatures, nil
}

func computeHMAC(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
