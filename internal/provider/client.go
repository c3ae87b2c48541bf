package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"settlement-service/internal/config"
)

const (
	defaultTimeoutMs = 10_000

	sessionsPath = "/v1/checkout/sessions"
)

// Client talks to the payment provider's checkout API. The provider speaks
// form-encoded requests and JSON responses.
type Client struct {
	client    *http.Client
	baseURL   string
	secretKey string
}

func NewClient() *Client {
	timeout := time.Duration(config.GetInt("PROVIDER_TIMEOUT_MS", defaultTimeoutMs)) * time.Millisecond
	return &Client{
		client:    &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(config.GetRequired("PROVIDER_API_URL"), "/"),
		secretKey: config.GetRequired("PROVIDER_SECRET_KEY"),
	}
}

type CheckoutSessionParams struct {
	// AmountMinor is the charge amount in integer minor currency units.
	AmountMinor int64
	Currency    string
	SuccessURL  string
	CancelURL   string
	// Metadata is echoed back verbatim in the provider's settlement event and
	// is the only link from an event back to internal records.
	Metadata map[string]string
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.AmountMinor, 10))
	form.Set("currency", params.Currency)
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	for key, value := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sessionsPath,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("provider returned %s: %s", resp.Status, string(body))
	}

	var session CheckoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("decoding provider response: %w", err)
	}
	if session.ID == "" || session.URL == "" {
		return nil, fmt.Errorf("provider response missing session id or url")
	}

	return &session, nil
}
