// Package projector exposes read-side order views and a realtime
// subscription over committed status transitions.
package projector

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/littlelatte/go-restaurant-orders/internal/orders"
	"github.com/littlelatte/go-restaurant-orders/internal/redisx"
)

type Store interface {
	ListByUser(ctx context.Context, userID string) ([]orders.Order, error)
	ListAdmin(ctx context.Context, f orders.AdminFilter) ([]orders.Order, error)
}

type Projector struct {
	Store Store
	Redis *redis.Client
}

// OrdersForCustomer returns the customer's orders, newest first.
func (p *Projector) OrdersForCustomer(ctx context.Context, userID string) ([]orders.Order, error) {
	return p.Store.ListByUser(ctx, userID)
}

func (p *Projector) OrdersForAdmin(ctx context.Context, f orders.AdminFilter) ([]orders.Order, error) {
	return p.Store.ListAdmin(ctx, f)
}

// Subscription delivers status updates for one order until cancelled.
type Subscription struct {
	C  <-chan orders.StatusUpdate
	ps *redis.PubSub
}

func (s *Subscription) Cancel() { _ = s.ps.Close() }

// Subscribe attaches to the order's update channel. The returned
// subscription must be cancelled by the caller; its channel closes once the
// underlying pubsub is closed or ctx ends.
func (p *Projector) Subscribe(ctx context.Context, orderID string) *Subscription {
	ps := p.Redis.Subscribe(ctx, fmt.Sprintf(redisx.ChannelOrderUpdates, orderID))
	out := make(chan orders.StatusUpdate, 8)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ps.Channel():
				if !ok {
					return
				}
				var upd orders.StatusUpdate
				if err := json.Unmarshal([]byte(m.Payload), &upd); err != nil {
					log.Printf("decode status update order=%s: %v", orderID, err)
					continue
				}
				select {
				case out <- upd:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{C: out, ps: ps}
}
