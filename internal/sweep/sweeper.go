// Package sweep expires abandoned checkout attempts so an order that never
// received a payment outcome does not stay ambiguous forever.
package sweep

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/littlelatte/go-restaurant-orders/internal/kafka"
	"github.com/littlelatte/go-restaurant-orders/internal/orders"
	"github.com/littlelatte/go-restaurant-orders/internal/redisx"
)

type Store interface {
	DeleteEmptyDrafts(ctx context.Context, olderThan time.Time) (int64, error)
	CancelStaleAwaiting(ctx context.Context, olderThan time.Time) ([]orders.CancelledOrder, error)
}

type EventPublisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Sweeper struct {
	Store       Store
	Redis       *redis.Client
	Producer    EventPublisher // order.cancelled
	ServiceName string
	MaxAge      time.Duration // how old a draft may get before it is swept
	Interval    time.Duration
}

// Run sweeps on a ticker until ctx ends.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if deleted, cancelled, err := s.SweepOnce(ctx); err != nil {
				log.Printf("sweep: %v", err)
			} else if deleted+cancelled > 0 {
				log.Printf("sweep: deleted %d empty drafts, cancelled %d stale orders", deleted, cancelled)
			}
		}
	}
}

// SweepOnce removes item-less drafts past the cutoff and cancels drafts
// still awaiting payment. Both are conditional updates; a payment that
// lands mid-sweep wins. Each cancellation is fanned out to subscribers.
func (s *Sweeper) SweepOnce(ctx context.Context) (deleted, cancelled int64, err error) {
	cutoff := time.Now().Add(-s.MaxAge)
	deleted, err = s.Store.DeleteEmptyDrafts(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	expired, err := s.Store.CancelStaleAwaiting(ctx, cutoff)
	if err != nil {
		return deleted, 0, err
	}
	for _, c := range expired {
		s.fanout(ctx, c)
	}
	return deleted, int64(len(expired)), nil
}

func (s *Sweeper) fanout(ctx context.Context, c orders.CancelledOrder) {
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCancelled,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: c.ID,
		Payload: kafkax.MustMarshal(orders.OrderCancelledPayload{
			OrderID: c.ID,
			UserID:  c.UserID,
			Reason:  "STALE_DRAFT",
		}),
	}
	s.Producer.Publish(orders.PartitionKey(c.ID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCancelled)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)

	// swept orders were still awaiting_payment by the CAS condition
	upd := orders.StatusUpdate{OrderID: c.ID, Status: orders.StatusCancelled, PaymentStatus: orders.PaymentAwaiting, UpdatedAt: time.Now().UTC()}
	b := kafkax.MustMarshal(upd)
	_ = s.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, c.ID), b, redisx.TTLStatusCache).Err()
	if err := s.Redis.Publish(ctx, fmt.Sprintf(redisx.ChannelOrderUpdates, c.ID), b).Err(); err != nil {
		log.Printf("publish cancel update order=%s: %v", c.ID, err)
	}
}
