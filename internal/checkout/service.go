// Package checkout turns a validated cart snapshot into a persisted draft
// order and obtains a payment session for it.
package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/littlelatte/go-restaurant-orders/internal/kafka"
	"github.com/littlelatte/go-restaurant-orders/internal/orders"
	"github.com/littlelatte/go-restaurant-orders/internal/redisx"
	"github.com/littlelatte/go-restaurant-orders/internal/yoco"
)

type OrderStore interface {
	CreateOrderTx(ctx context.Context, in orders.NewOrder) (orders.Created, error)
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	SetCheckoutID(ctx context.Context, orderID, checkoutID string) error
	Cancel(ctx context.Context, orderID, userID string) error
}

type Gateway interface {
	CreateCheckout(ctx context.Context, req yoco.CheckoutRequest) (yoco.Checkout, error)
	GetCheckout(ctx context.Context, checkoutID string) (yoco.Checkout, error)
}

type EventPublisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	Store       OrderStore
	Gateway     Gateway
	Redis       *redis.Client
	Cancelled   EventPublisher // order.cancelled
	ServiceName string
	BaseURL     string // public base for redirect + webhook URLs
	Currency    string
}

// CheckoutInput is the cart snapshot plus customer delivery details. The
// cart is passed in explicitly; the service never reads ambient state.
type CheckoutInput struct {
	CheckoutRef         string
	UserID              string
	Entries             []orders.CartEntry
	DeliveryMethod      string // pickup | delivery
	DeliveryAddress     string
	Phone               string
	SpecialInstructions string
}

type PaymentSession struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
	AmountCents int64  `json:"amount_cents"`
}

// session handle cached in redis per order
type sessionRecord struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
	AmountCents int64  `json:"amount_cents"`
}

// CreateOrder validates the cart and persists one order with its line items.
// Calling it again with the same CheckoutRef returns the existing order.
func (s *Service) CreateOrder(ctx context.Context, in CheckoutInput) (orders.Created, error) {
	if in.CheckoutRef == "" || in.UserID == "" {
		return orders.Created{}, fmt.Errorf("%w: missing checkout_ref or user_id", orders.ErrValidation)
	}
	if len(in.Entries) == 0 {
		return orders.Created{}, orders.ErrEmptyCart
	}
	method := in.DeliveryMethod
	if method == "" {
		method = "pickup"
	}
	if method != "pickup" && method != "delivery" {
		return orders.Created{}, fmt.Errorf("%w: unknown delivery method %q", orders.ErrValidation, method)
	}
	if method == "delivery" && in.DeliveryAddress == "" {
		return orders.Created{}, orders.ErrMissingAddress
	}
	phone, ok := NormalizePhone(in.Phone)
	if !ok {
		return orders.Created{}, orders.ErrInvalidPhone
	}

	items := make([]orders.NewItem, 0, len(in.Entries))
	for i, e := range in.Entries {
		if e.Qty <= 0 {
			return orders.Created{}, fmt.Errorf("%w: entry %d has invalid qty", orders.ErrValidation, i)
		}
		it := orders.NewItem{
			Qty:                 e.Qty,
			Customization:       e.Customization,
			SpecialInstructions: e.SpecialInstructions,
		}
		switch {
		case e.MenuItemID != "":
			id := e.MenuItemID
			it.MenuItemID = &id // price snapshotted from menu_items in the tx
		case e.Customized() && e.Price > 0:
			it.Price = e.Price
		default:
			return orders.Created{}, fmt.Errorf("%w: entry %d has neither menu item nor customization", orders.ErrValidation, i)
		}
		items = append(items, it)
	}

	created, err := s.Store.CreateOrderTx(ctx, orders.NewOrder{
		CheckoutRef:         in.CheckoutRef,
		UserID:              in.UserID,
		DeliveryMethod:      method,
		DeliveryAddress:     in.DeliveryAddress,
		Phone:               phone,
		SpecialInstructions: in.SpecialInstructions,
		Items:               items,
	})
	if err != nil {
		return orders.Created{}, err
	}

	// Redis shortcuts; the DB stays the source of truth.
	idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, in.CheckoutRef)
	_ = s.Redis.Set(ctx, idemKey, created.OrderID, redisx.TTLIdempotency).Err()
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, created.OrderID)
	_ = s.Redis.Set(ctx, statusKey, `{"status":"draft","payment_status":"awaiting_payment"}`, redisx.TTLStatusCache).Err()

	return created, nil
}

// RequestPaymentSession obtains a checkout session for a payable order,
// reusing the active one when the gateway still reports it open. The amount
// argument must match the stored order total within one cent.
func (s *Service) RequestPaymentSession(ctx context.Context, orderID, userID string, amount float64) (PaymentSession, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return PaymentSession{}, err
	}
	if o.UserID != userID {
		return PaymentSession{}, orders.ErrOrderNotFound
	}
	if o.Status != orders.StatusDraft && o.Status != orders.StatusPending {
		return PaymentSession{}, fmt.Errorf("%w: status is %s", orders.ErrNotPayable, o.Status)
	}
	if o.PaymentStatus == orders.PaymentPaid {
		return PaymentSession{}, fmt.Errorf("%w: already paid", orders.ErrNotPayable)
	}
	if math.Abs(o.Total-amount) > 0.01 {
		return PaymentSession{}, fmt.Errorf("%w: requested %.2f, order total %.2f", orders.ErrAmountMismatch, amount, o.Total)
	}

	sessKey := fmt.Sprintf(redisx.KeyCheckoutSession, orderID)
	if raw, err := s.Redis.Get(ctx, sessKey).Result(); err == nil && raw != "" {
		var rec sessionRecord
		if json.Unmarshal([]byte(raw), &rec) == nil && rec.ID != "" {
			if prev, err := s.Gateway.GetCheckout(ctx, rec.ID); err == nil && prev.Status == "created" {
				return PaymentSession{SessionID: rec.ID, RedirectURL: rec.RedirectURL, AmountCents: rec.AmountCents}, nil
			}
		}
	}

	amountCents := orders.RandsToCents(o.Total)
	co, err := s.Gateway.CreateCheckout(ctx, yoco.CheckoutRequest{
		Amount:     amountCents,
		Currency:   s.Currency,
		SuccessURL: fmt.Sprintf("%s/payment-success?orderId=%s", s.BaseURL, orderID),
		CancelURL:  fmt.Sprintf("%s/payment-cancelled?orderId=%s", s.BaseURL, orderID),
		FailureURL: fmt.Sprintf("%s/payment-failed?orderId=%s", s.BaseURL, orderID),
		WebhookURL: s.BaseURL + "/yoco/webhook",
		Metadata:   map[string]string{"orderId": orderID, "userId": o.UserID},
	})
	if err != nil {
		// order stays draft + awaiting_payment; the caller may retry
		return PaymentSession{}, err
	}

	rec := sessionRecord{ID: co.ID, RedirectURL: co.RedirectURL, AmountCents: amountCents}
	_ = s.Redis.Set(ctx, sessKey, string(mustJSON(rec)), redisx.TTLSession).Err()
	if err := s.Store.SetCheckoutID(ctx, orderID, co.ID); err != nil {
		log.Printf("record checkout id order=%s session=%s: %v", orderID, co.ID, err)
	}
	return PaymentSession{SessionID: co.ID, RedirectURL: co.RedirectURL, AmountCents: amountCents}, nil
}

// Cancel withdraws an unpaid order on the customer's behalf, then publishes
// the lifecycle event and pushes the transition to live subscribers. Fanout
// is best-effort; the cancellation itself has already committed.
func (s *Service) Cancel(ctx context.Context, orderID, userID string) error {
	if err := s.Store.Cancel(ctx, orderID, userID); err != nil {
		return err
	}

	paymentStatus := orders.PaymentAwaiting
	if o, err := s.Store.GetOrder(ctx, orderID); err == nil {
		paymentStatus = o.PaymentStatus
	}

	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCancelled,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(orders.OrderCancelledPayload{
			OrderID: orderID,
			UserID:  userID,
			Reason:  "CUSTOMER",
		}),
	}
	s.Cancelled.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCancelled)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)

	upd := orders.StatusUpdate{OrderID: orderID, Status: orders.StatusCancelled, PaymentStatus: paymentStatus, UpdatedAt: time.Now().UTC()}
	b := kafkax.MustMarshal(upd)
	_ = s.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID), b, redisx.TTLStatusCache).Err()
	_ = s.Redis.Del(ctx, fmt.Sprintf(redisx.KeyCheckoutSession, orderID)).Err()
	if err := s.Redis.Publish(ctx, fmt.Sprintf(redisx.ChannelOrderUpdates, orderID), b).Err(); err != nil {
		log.Printf("publish cancel update order=%s: %v", orderID, err)
	}
	return nil
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
