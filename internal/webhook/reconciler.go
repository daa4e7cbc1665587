// Package webhook consumes asynchronous payment-outcome callbacks and
// applies the resulting order transition exactly once per outcome.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/littlelatte/go-restaurant-orders/internal/kafka"
	"github.com/littlelatte/go-restaurant-orders/internal/orders"
	"github.com/littlelatte/go-restaurant-orders/internal/redisx"
	"github.com/littlelatte/go-restaurant-orders/internal/yoco"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	MarkPaid(ctx context.Context, orderID string) (bool, orders.PaymentStatus, error)
	MarkPaymentFailed(ctx context.Context, orderID string) (bool, orders.PaymentStatus, error)
}

type EventPublisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Reconciler struct {
	Store             OrderStore
	Redis             *redis.Client
	Secret            string // shared webhook secret
	Currency          string // e.g. ZAR; events in any other currency are anomalies
	ProducerConfirmed EventPublisher
	ProducerFailed    EventPublisher
	ServiceName       string
}

// Outcome describes what a delivery did; anomalies are acknowledged to the
// provider (Applied=false, nil error) so it stops redelivering.
type Outcome struct {
	EventID   string               `json:"event_id"`
	OrderID   string               `json:"order_id,omitempty"`
	Applied   bool                 `json:"applied"`
	Duplicate bool                 `json:"duplicate,omitempty"`
	Status    orders.PaymentStatus `json:"payment_status,omitempty"`
	Reason    string               `json:"reason,omitempty"`
}

// Process verifies and applies one webhook delivery. rawBody must be the
// untouched request body; the signature is computed over those exact bytes.
func (r *Reconciler) Process(ctx context.Context, rawBody []byte, signatureHeader string) (Outcome, error) {
	if !yoco.VerifySignature(rawBody, signatureHeader, r.Secret) {
		return Outcome{}, ErrInvalidSignature
	}

	ev, err := yoco.ParseWebhookEvent(rawBody)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{EventID: ev.ID}

	// fast-path dedup; the conditional DB update below is the real guard,
	// and the key is only written after a transition commits so transient
	// failures still get redelivered
	dkey := fmt.Sprintf(redisx.KeyDedup, "webhook", ev.ID)
	if exists, _ := redisx.Exists(ctx, r.Redis, dkey); exists {
		out.Duplicate = true
		return out, nil
	}

	orderID := ev.Payload.Metadata.OrderID
	if orderID == "" {
		log.Printf("webhook event=%s has no orderId in metadata, ignoring", ev.ID)
		out.Reason = "missing orderId"
		return out, nil
	}
	out.OrderID = orderID

	o, err := r.Store.GetOrder(ctx, orderID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		// order may have been swept; ack so the provider stops retrying
		log.Printf("webhook event=%s order=%s not found, ignoring", ev.ID, orderID)
		out.Reason = "order not found"
		return out, nil
	}
	if err != nil {
		return out, err
	}

	switch ev.Type {
	case yoco.EventPaymentSucceeded:
		return r.applySucceeded(ctx, ev, o, out, dkey)
	default: // payment.failed, payment.cancelled
		return r.applyFailed(ctx, ev, o, out, dkey)
	}
}

func (r *Reconciler) applySucceeded(ctx context.Context, ev yoco.WebhookEvent, o orders.Order, out Outcome, dkey string) (Outcome, error) {
	if r.Currency != "" && ev.Payload.Currency != r.Currency {
		log.Printf("webhook event=%s order=%s currency mismatch: event=%s want=%s, flagged for review",
			ev.ID, o.ID, ev.Payload.Currency, r.Currency)
		out.Reason = "currency mismatch"
		out.Status = o.PaymentStatus
		return out, nil
	}
	wantCents := orders.RandsToCents(o.Total)
	if ev.Payload.Amount != wantCents {
		log.Printf("webhook event=%s order=%s amount mismatch: event=%d order=%d, flagged for review",
			ev.ID, o.ID, ev.Payload.Amount, wantCents)
		out.Reason = orders.ErrAmountMismatch.Error()
		out.Status = o.PaymentStatus
		return out, nil
	}

	changed, cur, err := r.Store.MarkPaid(ctx, o.ID)
	if err != nil {
		return out, err
	}
	out.Status = cur
	if !changed {
		if cur == orders.PaymentPaid {
			// redelivered success; nothing left to do
			out.Duplicate = true
			_ = r.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
			return out, nil
		}
		log.Printf("webhook event=%s order=%s succeeded but order is %s/%s, flagged for review",
			ev.ID, o.ID, o.Status, cur)
		out.Reason = "order not in payable state"
		return out, nil
	}

	out.Applied = true
	log.Printf("order %s payment %s -> %s, status %s -> %s (event=%s)",
		o.ID, o.PaymentStatus, orders.PaymentPaid, o.Status, orders.StatusConfirmed, ev.ID)
	_ = r.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	// downstream fanout is best-effort and never rolls the transition back
	r.publishConfirmed(ctx, ev, o)
	r.fanout(ctx, o.ID, orders.StatusConfirmed, orders.PaymentPaid)
	return out, nil
}

func (r *Reconciler) applyFailed(ctx context.Context, ev yoco.WebhookEvent, o orders.Order, out Outcome, dkey string) (Outcome, error) {
	changed, cur, err := r.Store.MarkPaymentFailed(ctx, o.ID)
	if err != nil {
		return out, err
	}
	out.Status = cur
	if !changed {
		// paid stays paid even when a failed event arrives late
		if cur == orders.PaymentPaid {
			log.Printf("webhook event=%s order=%s failed after paid, keeping paid", ev.ID, o.ID)
		}
		out.Duplicate = cur == orders.PaymentFailed
		_ = r.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
		return out, nil
	}

	out.Applied = true
	log.Printf("order %s payment %s -> %s, status stays %s (event=%s)",
		o.ID, o.PaymentStatus, orders.PaymentFailed, o.Status, ev.ID)
	_ = r.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	r.publishFailed(ctx, ev, o)
	r.fanout(ctx, o.ID, o.Status, orders.PaymentFailed)
	return out, nil
}

func (r *Reconciler) publishConfirmed(ctx context.Context, ev yoco.WebhookEvent, o orders.Order) {
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderConfirmed,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      r.ServiceName,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderConfirmedPayload{
			OrderID:         o.ID,
			UserID:          o.UserID,
			AmountCents:     ev.Payload.Amount,
			ProviderEventID: ev.ID,
		}),
	}
	r.ProducerConfirmed.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderConfirmed)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (r *Reconciler) publishFailed(ctx context.Context, ev yoco.WebhookEvent, o orders.Order) {
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventPaymentFailed,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      r.ServiceName,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.PaymentFailedPayload{
			OrderID:         o.ID,
			UserID:          o.UserID,
			Reason:          ev.Payload.Status,
			ProviderEventID: ev.ID,
		}),
	}
	r.ProducerFailed.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventPaymentFailed)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// fanout refreshes the status cache and notifies live subscribers.
func (r *Reconciler) fanout(ctx context.Context, orderID string, s orders.Status, p orders.PaymentStatus) {
	upd := orders.StatusUpdate{OrderID: orderID, Status: s, PaymentStatus: p, UpdatedAt: time.Now().UTC()}
	b := kafkax.MustMarshal(upd)
	_ = r.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID), b, redisx.TTLStatusCache).Err()
	if err := r.Redis.Publish(ctx, fmt.Sprintf(redisx.ChannelOrderUpdates, orderID), b).Err(); err != nil {
		log.Printf("publish status update order=%s: %v", orderID, err)
	}
}
