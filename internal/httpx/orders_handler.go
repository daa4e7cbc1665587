package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/littlelatte/go-restaurant-orders/internal/checkout"
	kafkax "github.com/littlelatte/go-restaurant-orders/internal/kafka"
	"github.com/littlelatte/go-restaurant-orders/internal/orders"
	"github.com/littlelatte/go-restaurant-orders/internal/projector"
	"github.com/littlelatte/go-restaurant-orders/internal/redisx"
	"github.com/littlelatte/go-restaurant-orders/internal/yoco"
)

type OrdersHandler struct {
	Checkout  *checkout.Service
	Projector *projector.Projector
	Repo      *orders.Repo
	Redis     *redis.Client
	Producer  *kafkax.Producer // order.created
	Service   string
}

type CreateOrderReq struct {
	CheckoutRef         string             `json:"checkout_ref"`
	UserID              string             `json:"user_id"`
	Items               []orders.CartEntry `json:"items"`
	DeliveryMethod      string             `json:"delivery_method"`
	DeliveryAddress     string             `json:"delivery_address,omitempty"`
	Phone               string             `json:"phone"`
	SpecialInstructions string             `json:"special_instructions,omitempty"`
}

type CreateOrderResp struct {
	OrderID     string  `json:"order_id"`
	OrderNumber int64   `json:"order_number"`
	Total       float64 `json:"total"`
	Idempotent  bool    `json:"idempotent"`
}

type PaymentReq struct {
	UserID string  `json:"user_id"`
	Amount float64 `json:"amount"` // rands, must match the order total
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Post("/orders/{id}/payment", h.requestPayment)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Get("/orders/{id}/events", h.streamOrder)
	r.Get("/admin/orders", h.listAdminOrders)
	r.Post("/admin/orders/{id}/status", h.advanceStatus)
	r.Get("/menu", h.listMenu)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, errStatus(err), map[string]string{"error": err.Error()})
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, orders.ErrValidation), errors.Is(err, orders.ErrAmountMismatch):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrNotPayable), errors.Is(err, orders.ErrNotCancellable), errors.Is(err, orders.ErrBadTransition):
		return http.StatusConflict
	case errors.Is(err, yoco.ErrGatewayUnavailable), errors.Is(err, yoco.ErrGatewayRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	created, err := h.Checkout.CreateOrder(ctx, checkout.CheckoutInput{
		CheckoutRef:         req.CheckoutRef,
		UserID:              req.UserID,
		Entries:             req.Items,
		DeliveryMethod:      req.DeliveryMethod,
		DeliveryAddress:     req.DeliveryAddress,
		Phone:               req.Phone,
		SpecialInstructions: req.SpecialInstructions,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	if !created.Existed {
		ev := orders.Envelope{
			EventID:       uuid.NewString(),
			EventType:     orders.EventOrderCreated,
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      h.Service,
			TraceID:       r.Header.Get("X-Request-Id"),
			CorrelationID: created.OrderID,
			Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
				OrderID:        created.OrderID,
				OrderNumber:    created.Number,
				UserID:         req.UserID,
				TotalCents:     orders.RandsToCents(created.Total),
				DeliveryMethod: req.DeliveryMethod,
			}),
		}
		h.Producer.Publish(orders.PartitionKey(created.OrderID), kafkax.MustMarshal(ev),
			kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
			kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		)
	}

	writeJSON(w, http.StatusCreated, CreateOrderResp{
		OrderID:     created.OrderID,
		OrderNumber: created.Number,
		Total:       created.Total,
		Idempotent:  created.Existed,
	})
}

func (h *OrdersHandler) requestPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req PaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sess, err := h.Checkout.RequestPaymentSession(ctx, orderID, req.UserID, req.Amount)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Checkout.Cancel(ctx, orderID, req.UserID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(orders.StatusCancelled)})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Projector.OrdersForCustomer(ctx, userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Repo.GetOrder(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	items, err := h.Repo.ListItems(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		orders.Order
		Items []orders.OrderItem
	}{o, items})
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// cache first, DB as fallback
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	o, err := h.Repo.GetOrder(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	body := map[string]any{"status": o.Status, "payment_status": o.PaymentStatus}
	b, _ := json.Marshal(body)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// streamOrder pushes committed status transitions to the client as SSE so a
// redirect landing page sees the webhook outcome without polling.
func (h *OrdersHandler) streamOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	sub := h.Projector.Subscribe(r.Context(), orderID)
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case upd, ok := <-sub.C:
			if !ok {
				return
			}
			b, _ := json.Marshal(upd)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		}
	}
}

func (h *OrdersHandler) listAdminOrders(w http.ResponseWriter, r *http.Request) {
	var f orders.AdminFilter
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		st := orders.Status(v)
		if !orders.ValidStatus(st) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status"})
			return
		}
		f.Status = &st
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from"})
			return
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to"})
			return
		}
		f.To = &t
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Projector.OrdersForAdmin(ctx, f)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) advanceStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req struct {
		Status orders.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if !orders.ValidStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Repo.AdvanceStatus(ctx, orderID, req.Status)
	if err != nil {
		writeErr(w, err)
		return
	}

	// refresh cache + notify subscribers, same shape the reconciler emits
	upd := orders.StatusUpdate{OrderID: o.ID, Status: o.Status, PaymentStatus: o.PaymentStatus, UpdatedAt: time.Now().UTC()}
	b := kafkax.MustMarshal(upd)
	_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, o.ID), b, redisx.TTLStatusCache).Err()
	_ = h.Redis.Publish(ctx, fmt.Sprintf(redisx.ChannelOrderUpdates, o.ID), b).Err()

	writeJSON(w, http.StatusOK, map[string]any{"status": o.Status, "payment_status": o.PaymentStatus})
}

func (h *OrdersHandler) listMenu(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Repo.ListMenu(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}
