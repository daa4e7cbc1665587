package redisx

import "time"

const (
	// Idempotency for one checkout attempt: idem:checkout:{checkout_ref} -> order_id
	KeyIdemCheckout = "idem:checkout:%s"

	// Cache status order: order_status:{order_id} -> {"status":"...","payment_status":"..."}
	KeyOrderStatus = "order_status:%s"

	// Active payment session per order: checkout_session:{order_id} -> session json
	KeyCheckoutSession = "checkout_session:%s"

	// Dedup event processing: dedup:{service}:{id} (id = provider event_id or event_id)
	KeyDedup = "dedup:%s:%s"

	// Pub/sub channel for committed status transitions: order_updates:{order_id}
	ChannelOrderUpdates = "order_updates:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLSession     = time.Hour
	TTLDedup       = 48 * time.Hour
)
