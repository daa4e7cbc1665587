// Package notify sends best-effort customer notifications for order
// lifecycle events. Delivery failures never touch order state; the
// authoritative transition has already committed by the time an event
// reaches this consumer.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/littlelatte/go-restaurant-orders/internal/kafka"
	"github.com/littlelatte/go-restaurant-orders/internal/orders"
	"github.com/littlelatte/go-restaurant-orders/internal/redisx"
)

// Sender delivers one customer-facing message (push, email, sms...).
type Sender interface {
	Send(ctx context.Context, userID, subject, body string) error
}

// LogSender logs instead of delivering; stand-in until a real channel is
// wired up.
type LogSender struct{}

func (LogSender) Send(_ context.Context, userID, subject, body string) error {
	log.Printf("notify user=%s subject=%q body=%q", userID, subject, body)
	return nil
}

type Service struct {
	Redis       *redis.Client
	Sender      Sender
	ServiceName string
}

// HandleOrderEvent is installed as the consumer handler for the order
// lifecycle topics.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// dedup via redis; a redelivered event must not spam the customer
	dkey := fmt.Sprintf(redisx.KeyDedup, "notify", env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}

	switch env.EventType {
	case orders.EventOrderConfirmed:
		p, err := kafkax.UnwrapPayload[orders.OrderConfirmedPayload](env.Payload)
		if err != nil {
			return err
		}
		if err := s.Sender.Send(ctx, p.UserID, "Order confirmed",
			fmt.Sprintf("Payment received for order %s. We are getting it ready.", p.OrderID)); err != nil {
			log.Printf("send confirmed notification order=%s: %v", p.OrderID, err)
		}
	case orders.EventPaymentFailed:
		p, err := kafkax.UnwrapPayload[orders.PaymentFailedPayload](env.Payload)
		if err != nil {
			return err
		}
		if err := s.Sender.Send(ctx, p.UserID, "Payment failed",
			fmt.Sprintf("Payment for order %s did not go through. You can retry from your orders page.", p.OrderID)); err != nil {
			log.Printf("send failed notification order=%s: %v", p.OrderID, err)
		}
	case orders.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		// the customer initiated CUSTOMER cancellations themselves
		if p.Reason == "STALE_DRAFT" {
			if err := s.Sender.Send(ctx, p.UserID, "Order expired",
				fmt.Sprintf("Order %s was cancelled because payment was not completed in time.", p.OrderID)); err != nil {
				log.Printf("send cancelled notification order=%s: %v", p.OrderID, err)
			}
		}
	default:
		return nil // not ours
	}

	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}
