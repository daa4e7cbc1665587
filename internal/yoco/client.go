// Package yoco wraps the Yoco online payments API behind the narrow surface
// this service needs: create a checkout session, fetch its status, verify
// webhook signatures.
package yoco

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// network failure or 5xx from the provider; safe to retry
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// the provider rejected our request (4xx); retrying the same request won't help
	ErrGatewayRejected = errors.New("payment gateway rejected request")
)

type CheckoutRequest struct {
	Amount     int64             `json:"amount"` // minor units (cents)
	Currency   string            `json:"currency"`
	SuccessURL string            `json:"successUrl"`
	CancelURL  string            `json:"cancelUrl"`
	FailureURL string            `json:"failureUrl"`
	WebhookURL string            `json:"webhookUrl"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type Checkout struct {
	ID          string            `json:"id"`
	RedirectURL string            `json:"redirectUrl"`
	Status      string            `json:"status"` // created | succeeded | failed | cancelled
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type Client struct {
	BaseURL   string
	SecretKey string
	HTTP      *http.Client
}

func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		BaseURL:   baseURL,
		SecretKey: secretKey,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	return c.do(ctx, http.MethodPost, "/checkouts", req)
}

func (c *Client) GetCheckout(ctx context.Context, checkoutID string) (Checkout, error) {
	return c.do(ctx, http.MethodGet, "/checkouts/"+checkoutID, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (Checkout, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Checkout{}, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return Checkout{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Checkout{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Checkout{}, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		return Checkout{}, fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, resp.StatusCode, apiErr.Message)
	}

	var out Checkout
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Checkout{}, fmt.Errorf("decode checkout response: %w", err)
	}
	return out, nil
}
