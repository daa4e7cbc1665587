package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderConfirmed = "OrderConfirmed"
	EventPaymentFailed  = "PaymentFailed"
	EventOrderCancelled = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- payload per event ----

type OrderCreatedPayload struct {
	OrderID        string `json:"order_id"`
	OrderNumber    int64  `json:"order_number"`
	UserID         string `json:"user_id"`
	TotalCents     int64  `json:"total_cents"`
	DeliveryMethod string `json:"delivery_method"`
}

type OrderConfirmedPayload struct {
	OrderID         string `json:"order_id"`
	UserID          string `json:"user_id"`
	AmountCents     int64  `json:"amount_cents"`
	ProviderEventID string `json:"provider_event_id"`
}

type PaymentFailedPayload struct {
	OrderID         string `json:"order_id"`
	UserID          string `json:"user_id"`
	Reason          string `json:"reason"` // e.g., CARD_DECLINED
	ProviderEventID string `json:"provider_event_id"`
}

type OrderCancelledPayload struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Reason  string `json:"reason,omitempty"` // CUSTOMER | STALE_DRAFT
}
