package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderFulfilled = "OrderFulfilled"
	EventOrderFailed    = "OrderFailed"
)

// Envelope is the versioned wrapper for every lifecycle event we publish.
type Envelope struct {
	EventID       string          `json:"event_id"` // uuid
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // stripe session id
	Payload       json.RawMessage `json:"payload"`
}

type OrderFulfilledPayload struct {
	StripeSessionID  string `json:"stripe_session_id"`
	SupplierOrderRef string `json:"supplier_order_ref"`
	TotalCents       int64  `json:"total_cents"`
	Currency         string `json:"currency"`
}

type OrderFailedPayload struct {
	StripeSessionID   string            `json:"stripe_session_id"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	Reason            string            `json:"reason,omitempty"`
}
