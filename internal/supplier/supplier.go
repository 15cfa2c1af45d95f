// Package supplier talks to the dropship fulfillment provider. Placing an
// order is a two-phase protocol required by the upstream API: a free
// validation call first, then the billable create. The create call must
// be invoked at most once per order; the orchestrator guards that with
// the order's fulfillment status.
package supplier

import (
	"fmt"

	"github.com/pluteo/webshop/internal/orders"
)

// LineItem maps one catalog position onto the supplier's SKU.
type LineItem struct {
	Reference string `json:"reference"`
	Quantity  int64  `json:"quantity"`
}

// OrderRequest is everything the supplier needs to ship one order.
type OrderRequest struct {
	InternalReference string // our side of the correlation, unique per order
	Email             string
	Phone             string
	Name              string // customer display name; split for the wire format
	Address           orders.Address
	Items             []LineItem
}

// Phase identifies which step of order placement failed.
type Phase string

const (
	PhaseCheck    Phase = "check"
	PhaseCarriers Phase = "carriers"
	PhaseCreate   Phase = "create"
)

// PlacementError is a structured failure from order placement. The
// orchestrator uses Phase to pick the persisted failure status.
type PlacementError struct {
	Phase  Phase
	Reason string
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("supplier %s: %s", e.Phase, e.Reason)
}
