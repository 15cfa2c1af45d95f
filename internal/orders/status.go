package orders

// PaymentStatus tracks the money side of an order. "paid" is only
// reachable after the supplier confirmed the shipment order; see the
// fulfillment orchestrator.
type PaymentStatus string

const (
	PaymentAuthorized    PaymentStatus = "authorized"
	PaymentPaid          PaymentStatus = "paid"
	PaymentCanceled      PaymentStatus = "canceled"
	PaymentRefunded      PaymentStatus = "refunded"
	PaymentCaptureFailed PaymentStatus = "capture_failed" // supplier order exists, charge did not land
	PaymentCancelFailed  PaymentStatus = "cancel_failed"  // hold may still be on the customer's card
	PaymentError         PaymentStatus = "error"
)

// FulfillmentStatus tracks the supplier side of an order.
type FulfillmentStatus string

const (
	FulfillmentPending     FulfillmentStatus = "pending"
	FulfillmentSent        FulfillmentStatus = "sent"
	FulfillmentFailed      FulfillmentStatus = "failed"
	FulfillmentCheckFailed FulfillmentStatus = "check_failed"
	FulfillmentError       FulfillmentStatus = "error"
)

var paymentNext = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentAuthorized: {
		PaymentPaid:          true,
		PaymentCanceled:      true,
		PaymentRefunded:      true,
		PaymentCaptureFailed: true,
		PaymentCancelFailed:  true,
		PaymentError:         true,
	},
	PaymentPaid:          {},
	PaymentCanceled:      {},
	PaymentRefunded:      {},
	PaymentCaptureFailed: {},
	PaymentCancelFailed:  {},
	PaymentError:         {},
}

var fulfillmentNext = map[FulfillmentStatus]map[FulfillmentStatus]bool{
	FulfillmentPending: {
		FulfillmentSent:        true,
		FulfillmentFailed:      true,
		FulfillmentCheckFailed: true,
		FulfillmentError:       true,
	},
	FulfillmentSent:        {},
	FulfillmentFailed:      {},
	FulfillmentCheckFailed: {},
	FulfillmentError:       {},
}

func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	return paymentNext[s][to]
}

func (s FulfillmentStatus) CanTransition(to FulfillmentStatus) bool {
	return fulfillmentNext[s][to]
}

// Terminal reports whether the supplier side reached a final outcome.
// Only pending orders may still invoke the supplier's billable create.
func (s FulfillmentStatus) Terminal() bool {
	return s != FulfillmentPending
}

// FailureVariant reports whether the supplier side ended without a
// shipment order. Such orders must never retain a charge.
func (s FulfillmentStatus) FailureVariant() bool {
	return s == FulfillmentFailed || s == FulfillmentCheckFailed || s == FulfillmentError
}
