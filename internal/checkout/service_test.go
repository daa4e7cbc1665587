package checkout

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/littlelatte/go-restaurant-orders/internal/orders"
	"github.com/littlelatte/go-restaurant-orders/internal/yoco"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateOrderTx(ctx context.Context, in orders.NewOrder) (orders.Created, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(orders.Created), args.Error(1)
}

func (m *MockStore) GetOrder(ctx context.Context, orderID string) (orders.Order, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(orders.Order), args.Error(1)
}

func (m *MockStore) SetCheckoutID(ctx context.Context, orderID, checkoutID string) error {
	args := m.Called(ctx, orderID, checkoutID)
	return args.Error(0)
}

func (m *MockStore) Cancel(ctx context.Context, orderID, userID string) error {
	args := m.Called(ctx, orderID, userID)
	return args.Error(0)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCheckout(ctx context.Context, req yoco.CheckoutRequest) (yoco.Checkout, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(yoco.Checkout), args.Error(1)
}

func (m *MockGateway) GetCheckout(ctx context.Context, checkoutID string) (yoco.Checkout, error) {
	args := m.Called(ctx, checkoutID)
	return args.Get(0).(yoco.Checkout), args.Error(1)
}

type fakePublisher struct{ published [][]byte }

func (f *fakePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	f.published = append(f.published, value)
}

// redis at an address nothing listens on; the service treats redis as a
// best-effort shortcut, so every command just errors and is ignored
func deadRedis() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
}

func newService(store *MockStore, gw *MockGateway) *Service {
	return &Service{
		Store:       store,
		Gateway:     gw,
		Redis:       deadRedis(),
		Cancelled:   &fakePublisher{},
		ServiceName: "order-api-test",
		BaseURL:     "https://order.littlelatte.example",
		Currency:    "ZAR",
	}
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	store := new(MockStore)
	svc := newService(store, new(MockGateway))

	_, err := svc.CreateOrder(context.Background(), CheckoutInput{
		CheckoutRef: "cart-1",
		UserID:      "user-1",
		Phone:       "0823456789",
	})

	assert.ErrorIs(t, err, orders.ErrEmptyCart)
	assert.ErrorIs(t, err, orders.ErrValidation)
	store.AssertNotCalled(t, "CreateOrderTx", mock.Anything, mock.Anything)
}

func TestCreateOrder_DeliveryNeedsAddress(t *testing.T) {
	store := new(MockStore)
	svc := newService(store, new(MockGateway))

	_, err := svc.CreateOrder(context.Background(), CheckoutInput{
		CheckoutRef:    "cart-1",
		UserID:         "user-1",
		Entries:        []orders.CartEntry{{MenuItemID: "latte", Qty: 1}},
		DeliveryMethod: "delivery",
		Phone:          "0823456789",
	})

	assert.ErrorIs(t, err, orders.ErrMissingAddress)
	store.AssertNotCalled(t, "CreateOrderTx", mock.Anything, mock.Anything)
}

func TestCreateOrder_InvalidPhone(t *testing.T) {
	store := new(MockStore)
	svc := newService(store, new(MockGateway))

	_, err := svc.CreateOrder(context.Background(), CheckoutInput{
		CheckoutRef: "cart-1",
		UserID:      "user-1",
		Entries:     []orders.CartEntry{{MenuItemID: "latte", Qty: 1}},
		Phone:       "12345",
	})

	assert.ErrorIs(t, err, orders.ErrInvalidPhone)
	store.AssertNotCalled(t, "CreateOrderTx", mock.Anything, mock.Anything)
}

func TestCreateOrder_PickupCart(t *testing.T) {
	store := new(MockStore)
	svc := newService(store, new(MockGateway))

	store.On("CreateOrderTx", mock.Anything, mock.AnythingOfType("orders.NewOrder")).
		Return(orders.Created{OrderID: "ord-1", Number: 1042, Total: 118.00}, nil).
		Run(func(args mock.Arguments) {
			in := args.Get(1).(orders.NewOrder)
			assert.Equal(t, "cart-1", in.CheckoutRef)
			assert.Equal(t, "pickup", in.DeliveryMethod)
			assert.Equal(t, "0823456789", in.Phone)
			assert.Len(t, in.Items, 2)
			assert.Equal(t, "cappuccino", *in.Items[0].MenuItemID)
			assert.Equal(t, 2, in.Items[0].Qty)
			assert.Equal(t, "toastie", *in.Items[1].MenuItemID)
			assert.Equal(t, 1, in.Items[1].Qty)
		})

	created, err := svc.CreateOrder(context.Background(), CheckoutInput{
		CheckoutRef: "cart-1",
		UserID:      "user-1",
		Entries: []orders.CartEntry{
			{MenuItemID: "cappuccino", Qty: 2},
			{MenuItemID: "toastie", Qty: 1},
		},
		DeliveryMethod: "pickup",
		Phone:          "082 345 6789",
	})

	assert.NoError(t, err)
	assert.Equal(t, "ord-1", created.OrderID)
	assert.Equal(t, 118.00, created.Total)
	assert.False(t, created.Existed)
	store.AssertExpectations(t)
}

func TestCreateOrder_SecondCallIsIdempotent(t *testing.T) {
	store := new(MockStore)
	svc := newService(store, new(MockGateway))

	store.On("CreateOrderTx", mock.Anything, mock.Anything).
		Return(orders.Created{OrderID: "ord-1", Number: 1042, Total: 33.00, Existed: true}, nil)

	created, err := svc.CreateOrder(context.Background(), CheckoutInput{
		CheckoutRef: "cart-1",
		UserID:      "user-1",
		Entries:     []orders.CartEntry{{MenuItemID: "cappuccino", Qty: 1}},
		Phone:       "0823456789",
	})

	assert.NoError(t, err)
	assert.True(t, created.Existed)
	assert.Equal(t, "ord-1", created.OrderID)
}

func payableOrder() orders.Order {
	return orders.Order{
		ID:            "ord-1",
		UserID:        "user-1",
		Status:        orders.StatusDraft,
		PaymentStatus: orders.PaymentAwaiting,
		Total:         118.00,
	}
}

func TestRequestPaymentSession_CreatesSession(t *testing.T) {
	store := new(MockStore)
	gw := new(MockGateway)
	svc := newService(store, gw)

	store.On("GetOrder", mock.Anything, "ord-1").Return(payableOrder(), nil)
	store.On("SetCheckoutID", mock.Anything, "ord-1", "co-1").Return(nil)
	gw.On("CreateCheckout", mock.Anything, mock.AnythingOfType("yoco.CheckoutRequest")).
		Return(yoco.Checkout{ID: "co-1", RedirectURL: "https://pay.example/co-1", Status: "created"}, nil).
		Run(func(args mock.Arguments) {
			req := args.Get(1).(yoco.CheckoutRequest)
			assert.Equal(t, int64(11800), req.Amount)
			assert.Equal(t, "ZAR", req.Currency)
			assert.Equal(t, "ord-1", req.Metadata["orderId"])
			assert.Contains(t, req.SuccessURL, "orderId=ord-1")
			assert.Contains(t, req.WebhookURL, "/yoco/webhook")
		})

	sess, err := svc.RequestPaymentSession(context.Background(), "ord-1", "user-1", 118.00)

	assert.NoError(t, err)
	assert.Equal(t, "co-1", sess.SessionID)
	assert.Equal(t, "https://pay.example/co-1", sess.RedirectURL)
	assert.Equal(t, int64(11800), sess.AmountCents)
	store.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestRequestPaymentSession_AmountMismatch(t *testing.T) {
	store := new(MockStore)
	gw := new(MockGateway)
	svc := newService(store, gw)

	store.On("GetOrder", mock.Anything, "ord-1").Return(payableOrder(), nil)

	_, err := svc.RequestPaymentSession(context.Background(), "ord-1", "user-1", 100.00)

	assert.ErrorIs(t, err, orders.ErrAmountMismatch)
	gw.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything)
}

func TestRequestPaymentSession_AlreadyPaid(t *testing.T) {
	store := new(MockStore)
	gw := new(MockGateway)
	svc := newService(store, gw)

	o := payableOrder()
	o.Status = orders.StatusConfirmed
	o.PaymentStatus = orders.PaymentPaid
	store.On("GetOrder", mock.Anything, "ord-1").Return(o, nil)

	_, err := svc.RequestPaymentSession(context.Background(), "ord-1", "user-1", 118.00)

	assert.ErrorIs(t, err, orders.ErrNotPayable)
	gw.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything)
}

func TestRequestPaymentSession_WrongUser(t *testing.T) {
	store := new(MockStore)
	gw := new(MockGateway)
	svc := newService(store, gw)

	store.On("GetOrder", mock.Anything, "ord-1").Return(payableOrder(), nil)

	_, err := svc.RequestPaymentSession(context.Background(), "ord-1", "someone-else", 118.00)

	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestRequestPaymentSession_GatewayDownIsRetryable(t *testing.T) {
	store := new(MockStore)
	gw := new(MockGateway)
	svc := newService(store, gw)

	store.On("GetOrder", mock.Anything, "ord-1").Return(payableOrder(), nil)
	gw.On("CreateCheckout", mock.Anything, mock.Anything).
		Return(yoco.Checkout{}, yoco.ErrGatewayUnavailable)

	_, err := svc.RequestPaymentSession(context.Background(), "ord-1", "user-1", 118.00)

	assert.ErrorIs(t, err, yoco.ErrGatewayUnavailable)
	// no state written; a retry goes through the same path
	store.AssertNotCalled(t, "SetCheckoutID", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancel_PublishesCancelledEvent(t *testing.T) {
	store := new(MockStore)
	svc := newService(store, new(MockGateway))
	pub := &fakePublisher{}
	svc.Cancelled = pub

	o := payableOrder()
	o.Status = orders.StatusCancelled
	store.On("Cancel", mock.Anything, "ord-1", "user-1").Return(nil)
	store.On("GetOrder", mock.Anything, "ord-1").Return(o, nil)

	require.NoError(t, svc.Cancel(context.Background(), "ord-1", "user-1"))

	require.Len(t, pub.published, 1)
	var env orders.Envelope
	require.NoError(t, json.Unmarshal(pub.published[0], &env))
	assert.Equal(t, orders.EventOrderCancelled, env.EventType)
	assert.Equal(t, "ord-1", env.CorrelationID)

	var p orders.OrderCancelledPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "CUSTOMER", p.Reason)
	assert.Equal(t, "user-1", p.UserID)
}

func TestCancel_NotCancellableDoesNotPublish(t *testing.T) {
	store := new(MockStore)
	svc := newService(store, new(MockGateway))
	pub := &fakePublisher{}
	svc.Cancelled = pub

	store.On("Cancel", mock.Anything, "ord-1", "user-1").Return(orders.ErrNotCancellable)

	err := svc.Cancel(context.Background(), "ord-1", "user-1")

	assert.ErrorIs(t, err, orders.ErrNotCancellable)
	assert.Empty(t, pub.published)
}

func TestRequestPaymentSession_RetryAfterFailedPayment(t *testing.T) {
	store := new(MockStore)
	gw := new(MockGateway)
	svc := newService(store, gw)

	o := payableOrder()
	o.PaymentStatus = orders.PaymentFailed
	store.On("GetOrder", mock.Anything, "ord-1").Return(o, nil)
	store.On("SetCheckoutID", mock.Anything, "ord-1", "co-2").Return(nil)
	gw.On("CreateCheckout", mock.Anything, mock.Anything).
		Return(yoco.Checkout{ID: "co-2", RedirectURL: "https://pay.example/co-2", Status: "created"}, nil)

	sess, err := svc.RequestPaymentSession(context.Background(), "ord-1", "user-1", 118.00)

	assert.NoError(t, err)
	assert.Equal(t, "co-2", sess.SessionID)
}
