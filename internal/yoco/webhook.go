package yoco

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPaymentCancelled = "payment.cancelled"
)

var ErrMalformedEvent = errors.New("malformed webhook event")

type WebhookEvent struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	CreatedDate string         `json:"createdDate,omitempty"`
	Payload     WebhookPayload `json:"payload"`
}

type WebhookPayload struct {
	ID       string          `json:"id"` // checkout id
	Status   string          `json:"status"`
	Amount   int64           `json:"amount"` // minor units
	Currency string          `json:"currency"`
	Metadata WebhookMetadata `json:"metadata"`
}

type WebhookMetadata struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId,omitempty"`
}

// ParseWebhookEvent decodes and structurally validates a webhook body.
// Signature verification happens before this, on the raw bytes.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.ID == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing event id", ErrMalformedEvent)
	}
	switch ev.Type {
	case EventPaymentSucceeded, EventPaymentFailed, EventPaymentCancelled:
	default:
		return WebhookEvent{}, fmt.Errorf("%w: unsupported type %q", ErrMalformedEvent, ev.Type)
	}
	if ev.Payload.ID == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing payload id", ErrMalformedEvent)
	}
	if ev.Payload.Currency == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing currency", ErrMalformedEvent)
	}
	return ev, nil
}
