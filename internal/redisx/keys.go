package redisx

import "time"

const (
	// Dedup webhook deliveries: dedup:webhook:{stripe_event_id}
	KeyDedupWebhook = "dedup:webhook:%s"

	// Cache order status: order_status:{stripe_session_id} -> {"payment_status":"...","fulfillment_status":"..."}
	KeyOrderStatus = "order_status:%s"

	// In-flight fulfillment lock: lock:fulfill:{stripe_session_id}
	KeyFulfillLock = "lock:fulfill:%s"
)

var (
	TTLDedup       = 48 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLFulfillLock = 2 * time.Minute
)
