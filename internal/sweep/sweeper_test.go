package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/littlelatte/go-restaurant-orders/internal/orders"
)

type fakeStore struct {
	deleted      int64
	cancelled    []orders.CancelledOrder
	deleteErr    error
	cancelErr    error
	deleteCutoff time.Time
	cancelCalls  int
}

func (f *fakeStore) DeleteEmptyDrafts(_ context.Context, olderThan time.Time) (int64, error) {
	f.deleteCutoff = olderThan
	return f.deleted, f.deleteErr
}

func (f *fakeStore) CancelStaleAwaiting(_ context.Context, olderThan time.Time) ([]orders.CancelledOrder, error) {
	f.cancelCalls++
	return f.cancelled, f.cancelErr
}

type fakePublisher struct{ published [][]byte }

func (f *fakePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	f.published = append(f.published, value)
}

func newSweeper(store *fakeStore) (*Sweeper, *fakePublisher) {
	pub := &fakePublisher{}
	s := &Sweeper{
		Store:       store,
		Redis:       redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}),
		Producer:    pub,
		ServiceName: "order-worker-test",
		MaxAge:      time.Hour,
		Interval:    time.Minute,
	}
	return s, pub
}

func TestSweepOnce(t *testing.T) {
	store := &fakeStore{
		deleted: 3,
		cancelled: []orders.CancelledOrder{
			{ID: "ord-1", UserID: "user-1"},
			{ID: "ord-2", UserID: "user-2"},
		},
	}
	s, pub := newSweeper(store)

	deleted, cancelled, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if deleted != 3 || cancelled != 2 {
		t.Errorf("got (%d, %d), want (3, 2)", deleted, cancelled)
	}

	age := time.Since(store.deleteCutoff)
	if age < time.Hour || age > time.Hour+time.Minute {
		t.Errorf("cutoff %v not ~1h old", store.deleteCutoff)
	}

	// one lifecycle event per expired order
	if len(pub.published) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.published))
	}
	var env orders.Envelope
	if err := json.Unmarshal(pub.published[0], &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.EventType != orders.EventOrderCancelled {
		t.Errorf("event type %q, want %q", env.EventType, orders.EventOrderCancelled)
	}
	var p orders.OrderCancelledPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.OrderID != "ord-1" || p.UserID != "user-1" || p.Reason != "STALE_DRAFT" {
		t.Errorf("payload %+v", p)
	}
}

func TestSweepOnce_NothingExpired(t *testing.T) {
	s, pub := newSweeper(&fakeStore{})

	deleted, cancelled, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if deleted != 0 || cancelled != 0 {
		t.Errorf("got (%d, %d), want (0, 0)", deleted, cancelled)
	}
	if len(pub.published) != 0 {
		t.Errorf("published %d events, want 0", len(pub.published))
	}
}

func TestSweepOnce_DeleteErrorStopsSweep(t *testing.T) {
	store := &fakeStore{deleteErr: errors.New("db down")}
	s, _ := newSweeper(store)

	_, _, err := s.SweepOnce(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if store.cancelCalls != 0 {
		t.Error("cancel pass ran after delete pass failed")
	}
}

func TestSweepOnce_CancelError(t *testing.T) {
	store := &fakeStore{deleted: 1, cancelErr: errors.New("db down")}
	s, pub := newSweeper(store)

	deleted, _, err := s.SweepOnce(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if len(pub.published) != 0 {
		t.Error("published events despite cancel failure")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s, _ := newSweeper(&fakeStore{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
