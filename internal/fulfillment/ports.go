package fulfillment

import (
	"context"
	"errors"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/pluteo/webshop/internal/catalog"
	"github.com/pluteo/webshop/internal/orders"
	"github.com/pluteo/webshop/internal/supplier"
)

// ErrBadSignature marks an event that failed webhook verification.
// Nothing downstream may run on such input; the HTTP layer maps it to 400.
var ErrBadSignature = errors.New("webhook signature verification failed")

// CheckoutEvent is one verified gateway notification, already decoded
// and flattened to what the pipeline needs. Amounts are minor units.
type CheckoutEvent struct {
	EventID         string
	Type            string
	Completed       bool // true only for a completed-checkout event
	SessionID       string
	PaymentIntentID string
	Email           string
	Name            string
	Phone           string
	Address         orders.Address
	Currency        string
	TotalCents      int64
	AlreadyCaptured bool // funds already moved; failure path must refund, not cancel
	Items           []EventLineItem
}

// EventLineItem is one purchased line from the event's expanded line-item
// data. ProductID is 0 when the gateway carried no catalog reference.
type EventLineItem struct {
	ProductID   int64
	Description string
	Quantity    int64
	AmountCents int64 // line total
}

// PaymentGateway wraps the payment provider's intent API.
type PaymentGateway interface {
	VerifyAndParse(ctx context.Context, payload []byte, sigHeader string) (CheckoutEvent, error)
	Capture(ctx context.Context, intentID string) error
	CancelAuthorization(ctx context.Context, intentID string) error
	Refund(ctx context.Context, intentID string) error
}

// SupplierGateway places one dropship order. The create phase behind it
// is billable; callers gate it on fulfillment status.
type SupplierGateway interface {
	PlaceOrder(ctx context.Context, req supplier.OrderRequest) (string, error)
}

// OrderRepository is the durable order store with atomic find-or-create
// and compare-and-set status transitions.
type OrderRepository interface {
	FindOrCreate(ctx context.Context, o orders.Order) (orders.Order, bool, error)
	GetBySessionID(ctx context.Context, sessionID string) (orders.Order, error)
	CASFulfillment(ctx context.Context, sessionID string, from, to orders.FulfillmentStatus, supplierRef, reason string) (bool, error)
	CASPayment(ctx context.Context, sessionID string, from, to orders.PaymentStatus) (bool, error)
}

// CatalogStore resolves catalog products for supplier-SKU mapping.
type CatalogStore interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
}

// Notifier delivers one rendered customer message. Best effort only:
// failures are logged and never roll back order state.
type Notifier interface {
	Send(to, subject, htmlBody string) error
}

// EventPublisher emits order lifecycle events for downstream consumers.
type EventPublisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}
