package orders

import "time"

// Address is the structured shipping address collected at checkout.
// Line1/City/PostalCode/Country are required for dropship fulfillment.
type Address struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"` // ISO 3166-1 alpha-2
}

// LineItem is one purchased position as reported by the payment gateway.
// AmountCents is the line total in integer minor units; line totals
// always sum to the order total, a derived unit price would not.
type LineItem struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	AmountCents int64  `json:"amount_cents"`
}

// Order is the durable record of one checkout, keyed by the payment
// gateway's session ID. One row per session, never deleted.
type Order struct {
	StripeSessionID   string
	PaymentIntentID   string
	CustomerEmail     string // "" when the gateway reported no email
	CustomerName      string
	ShippingAddress   Address
	TotalCents        int64
	Currency          string
	Items             []LineItem
	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus
	SupplierOrderRef  string
	FailureReason     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasEmail reports whether we can reach the customer. Orders without an
// email are still fulfilled and reconciled; only notification is skipped.
func (o Order) HasEmail() bool { return o.CustomerEmail != "" }
