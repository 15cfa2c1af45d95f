// Package fulfillment drives the order state machine behind the payment
// gateway's checkout-completed webhook. The ordering contract is strict:
// the supplier must confirm the shipment order before the customer is
// charged, and a failed placement must release the payment hold.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/pluteo/webshop/internal/kafka"
	"github.com/pluteo/webshop/internal/mailer"
	"github.com/pluteo/webshop/internal/orders"
	"github.com/pluteo/webshop/internal/redisx"
	"github.com/pluteo/webshop/internal/supplier"
)

const defaultCallTimeout = 15 * time.Second

// Orchestrator handles one verified checkout event at a time as a strictly
// sequential pipeline: verify, materialize the order, map line items to
// supplier SKUs, place the supplier order, reconcile the payment, notify.
type Orchestrator struct {
	Payments PaymentGateway
	Supplier SupplierGateway
	Orders   OrderRepository
	Catalog  CatalogStore
	Notifier Notifier
	Events   EventPublisher // optional
	Redis    *redis.Client  // optional fast paths; Postgres state stays the truth
	Service  string

	// CallTimeout bounds every outbound payment/supplier call.
	CallTimeout time.Duration
	Log         *zap.Logger
}

// HandleEvent processes one raw webhook delivery. A nil return means the
// delivery is durably handled and may be acknowledged, including handled
// failure outcomes. ErrBadSignature and storage faults return non-nil so
// the gateway retries.
func (w *Orchestrator) HandleEvent(ctx context.Context, rawBody []byte, sigHeader string) error {
	ev, err := w.Payments.VerifyAndParse(ctx, rawBody, sigHeader)
	if err != nil {
		return err
	}
	if !ev.Completed {
		w.Log.Debug("ignoring event", zap.String("type", ev.Type))
		return nil
	}

	// Dedup fast path on the gateway's event id. Real idempotency comes
	// from the unique session key and the status gates below.
	if w.seenEvent(ctx, ev.EventID) {
		w.Log.Info("duplicate event delivery", zap.String("event_id", ev.EventID), zap.String("session", ev.SessionID))
		return nil
	}
	if err := w.handleCompleted(ctx, ev); err != nil {
		// The dedup key means handled, not observed. Release it so the
		// gateway's retry of this delivery is processed, not swallowed.
		w.clearEvent(ctx, ev.EventID)
		return err
	}
	return nil
}

func (w *Orchestrator) handleCompleted(ctx context.Context, ev CheckoutEvent) error {
	order, created, err := w.Orders.FindOrCreate(ctx, deriveOrder(ev))
	if err != nil {
		return fmt.Errorf("materialize order: %w", err)
	}
	if created {
		w.Log.Info("order created",
			zap.String("session", order.StripeSessionID),
			zap.Int64("total_cents", order.TotalCents),
			zap.String("currency", order.Currency))
	}
	if order.FulfillmentStatus.Terminal() {
		// The supplier create is billable and must not run again. But a
		// crash between the fulfillment CAS and the payment call leaves
		// the payment authorized; resume reconciliation from the row.
		if order.PaymentStatus == orders.PaymentAuthorized {
			w.Log.Warn("resuming payment reconciliation",
				zap.String("session", order.StripeSessionID),
				zap.String("fulfillment_status", string(order.FulfillmentStatus)))
			if order.FulfillmentStatus == orders.FulfillmentSent {
				return w.capturePayment(ctx, order, ev)
			}
			return w.releasePayment(ctx, order, ev, order.FailureReason)
		}
		w.Log.Info("order already handled",
			zap.String("session", order.StripeSessionID),
			zap.String("fulfillment_status", string(order.FulfillmentStatus)))
		return nil
	}

	items := w.mapLineItems(ctx, ev)
	if len(items) == 0 {
		return w.failOrder(ctx, order, ev, orders.FulfillmentFailed, "no fulfillable items")
	}

	if !w.acquireLock(ctx, ev.SessionID) {
		w.Log.Info("concurrent delivery in flight, skipping", zap.String("session", ev.SessionID))
		return nil
	}

	supplierRef, err := w.placeSupplierOrder(ctx, order, ev, items)
	if err != nil {
		status := orders.FulfillmentFailed
		var pe *supplier.PlacementError
		if errors.As(err, &pe) && pe.Phase == supplier.PhaseCheck {
			status = orders.FulfillmentCheckFailed
		}
		return w.failOrder(ctx, order, ev, status, err.Error())
	}

	return w.completeOrder(ctx, order, ev, supplierRef)
}

// deriveOrder flattens a checkout event into the durable order shape.
// A missing email becomes the empty sentinel; the order is still worth
// fulfilling, only notification is skipped.
func deriveOrder(ev CheckoutEvent) orders.Order {
	items := make([]orders.LineItem, 0, len(ev.Items))
	for _, it := range ev.Items {
		// Line totals are stored as-is; dividing into a unit price would
		// truncate on non-divisible amounts and no longer sum to the total.
		items = append(items, orders.LineItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			AmountCents: it.AmountCents,
		})
	}
	return orders.Order{
		StripeSessionID: ev.SessionID,
		PaymentIntentID: ev.PaymentIntentID,
		CustomerEmail:   ev.Email,
		CustomerName:    ev.Name,
		ShippingAddress: ev.Address,
		TotalCents:      ev.TotalCents,
		Currency:        ev.Currency,
		Items:           items,
	}
}

// mapLineItems resolves catalog products to supplier SKUs. Lines without
// a catalog reference or without a supplier SKU are dropped, not fatal.
func (w *Orchestrator) mapLineItems(ctx context.Context, ev CheckoutEvent) []supplier.LineItem {
	out := make([]supplier.LineItem, 0, len(ev.Items))
	for _, it := range ev.Items {
		if it.ProductID == 0 {
			w.Log.Warn("line item without catalog reference, dropping",
				zap.String("session", ev.SessionID), zap.String("description", it.Description))
			continue
		}
		p, err := w.Catalog.GetProduct(ctx, it.ProductID)
		if err != nil {
			w.Log.Warn("catalog lookup failed, dropping line",
				zap.String("session", ev.SessionID), zap.Int64("product_id", it.ProductID), zap.Error(err))
			continue
		}
		if p.SupplierSKU == "" {
			w.Log.Warn("product has no supplier SKU, dropping line",
				zap.String("session", ev.SessionID), zap.Int64("product_id", it.ProductID))
			continue
		}
		out = append(out, supplier.LineItem{Reference: p.SupplierSKU, Quantity: it.Quantity})
	}
	return out
}

func (w *Orchestrator) placeSupplierOrder(ctx context.Context, order orders.Order, ev CheckoutEvent, items []supplier.LineItem) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.callTimeout())
	defer cancel()

	return w.Supplier.PlaceOrder(callCtx, supplier.OrderRequest{
		InternalReference: "WEB_" + order.StripeSessionID,
		Email:             order.CustomerEmail,
		Phone:             ev.Phone,
		Name:              order.CustomerName,
		Address:           order.ShippingAddress,
		Items:             items,
	})
}

// completeOrder runs the success branch: record the supplier reference,
// then capture. Fulfillment is marked sent before capture so "paid"
// is never reachable without a confirmed shipment order.
func (w *Orchestrator) completeOrder(ctx context.Context, order orders.Order, ev CheckoutEvent, supplierRef string) error {
	ok, err := w.Orders.CASFulfillment(ctx, order.StripeSessionID,
		orders.FulfillmentPending, orders.FulfillmentSent, supplierRef, "")
	if err != nil {
		return err
	}
	if !ok {
		w.Log.Info("lost fulfillment transition race", zap.String("session", order.StripeSessionID))
		return nil
	}
	order.FulfillmentStatus = orders.FulfillmentSent
	order.SupplierOrderRef = supplierRef
	return w.capturePayment(ctx, order, ev)
}

// capturePayment finishes the money side of a sent order. Sessions the
// gateway already captured go straight to paid; a second capture call
// would only fail and page an operator for nothing.
func (w *Orchestrator) capturePayment(ctx context.Context, order orders.Order, ev CheckoutEvent) error {
	if !ev.AlreadyCaptured {
		callCtx, cancel := context.WithTimeout(ctx, w.callTimeout())
		err := w.Payments.Capture(callCtx, order.PaymentIntentID)
		cancel()
		if err != nil {
			// The supplier order exists but the charge did not land. Persist a
			// distinct status so an operator can find and reconcile it.
			w.Log.Error("capture failed after supplier success",
				zap.String("session", order.StripeSessionID),
				zap.String("supplier_ref", order.SupplierOrderRef),
				zap.Error(err))
			if _, casErr := w.Orders.CASPayment(ctx, order.StripeSessionID,
				orders.PaymentAuthorized, orders.PaymentCaptureFailed); casErr != nil {
				return casErr
			}
			order.PaymentStatus = orders.PaymentCaptureFailed
			w.publishFailed(order, "capture failed")
			w.cacheStatus(ctx, order)
			return nil
		}
	}

	if _, err := w.Orders.CASPayment(ctx, order.StripeSessionID,
		orders.PaymentAuthorized, orders.PaymentPaid); err != nil {
		return err
	}
	order.PaymentStatus = orders.PaymentPaid

	w.notify(order, true)
	w.publishFulfilled(order)
	w.cacheStatus(ctx, order)
	w.Log.Info("order fulfilled",
		zap.String("session", order.StripeSessionID),
		zap.String("supplier_ref", order.SupplierOrderRef))
	return nil
}

// failOrder runs the failure branch: claim the terminal fulfillment
// status, then release the customer's money. No capture ever happens here.
func (w *Orchestrator) failOrder(ctx context.Context, order orders.Order, ev CheckoutEvent, status orders.FulfillmentStatus, reason string) error {
	ok, err := w.Orders.CASFulfillment(ctx, order.StripeSessionID,
		orders.FulfillmentPending, status, "", reason)
	if err != nil {
		return err
	}
	if !ok {
		w.Log.Info("lost fulfillment transition race", zap.String("session", order.StripeSessionID))
		return nil
	}
	order.FulfillmentStatus = status
	order.FailureReason = reason
	w.Log.Warn("fulfillment failed",
		zap.String("session", order.StripeSessionID),
		zap.String("status", string(status)),
		zap.String("reason", reason))
	return w.releasePayment(ctx, order, ev, reason)
}

// releasePayment gives the customer their money back after a fulfillment
// failure: cancel the authorization, or refund when funds already moved.
func (w *Orchestrator) releasePayment(ctx context.Context, order orders.Order, ev CheckoutEvent, reason string) error {
	target := orders.PaymentCanceled
	callCtx, cancel := context.WithTimeout(ctx, w.callTimeout())
	var err error
	if ev.AlreadyCaptured {
		target = orders.PaymentRefunded
		err = w.Payments.Refund(callCtx, order.PaymentIntentID)
	} else {
		err = w.Payments.CancelAuthorization(callCtx, order.PaymentIntentID)
	}
	cancel()
	if err != nil {
		// Money may still be held. cancel_failed is a terminal status an
		// operator queries for; it is never silently retried.
		w.Log.Error("releasing payment failed",
			zap.String("session", order.StripeSessionID),
			zap.Bool("refund", ev.AlreadyCaptured),
			zap.Error(err))
		if _, casErr := w.Orders.CASPayment(ctx, order.StripeSessionID,
			orders.PaymentAuthorized, orders.PaymentCancelFailed); casErr != nil {
			return casErr
		}
		order.PaymentStatus = orders.PaymentCancelFailed
		w.publishFailed(order, reason)
		w.cacheStatus(ctx, order)
		return nil
	}

	if _, err := w.Orders.CASPayment(ctx, order.StripeSessionID,
		orders.PaymentAuthorized, target); err != nil {
		return err
	}
	order.PaymentStatus = target

	w.notify(order, false)
	w.publishFailed(order, reason)
	w.cacheStatus(ctx, order)
	return nil
}

// notify sends the one customer-facing message for the outcome. Orders
// without an email skip this; send errors never affect order state.
func (w *Orchestrator) notify(order orders.Order, success bool) {
	if !order.HasEmail() {
		w.Log.Info("order has no customer email, skipping notification",
			zap.String("session", order.StripeSessionID))
		return
	}
	var subject, body string
	if success {
		subject, body = mailer.RenderOrderConfirmed(order)
	} else {
		subject, body = mailer.RenderOrderFailed(order)
	}
	if err := w.Notifier.Send(order.CustomerEmail, subject, body); err != nil {
		w.Log.Error("notification send failed",
			zap.String("session", order.StripeSessionID),
			zap.Error(err))
	}
}

func (w *Orchestrator) publishFulfilled(order orders.Order) {
	if w.Events == nil {
		return
	}
	w.publish(orders.EventOrderFulfilled, order.StripeSessionID, orders.OrderFulfilledPayload{
		StripeSessionID:  order.StripeSessionID,
		SupplierOrderRef: order.SupplierOrderRef,
		TotalCents:       order.TotalCents,
		Currency:         order.Currency,
	})
}

func (w *Orchestrator) publishFailed(order orders.Order, reason string) {
	if w.Events == nil {
		return
	}
	w.publish(orders.EventOrderFailed, order.StripeSessionID, orders.OrderFailedPayload{
		StripeSessionID:   order.StripeSessionID,
		FulfillmentStatus: order.FulfillmentStatus,
		PaymentStatus:     order.PaymentStatus,
		Reason:            reason,
	})
}

func (w *Orchestrator) publish(eventType, sessionID string, payload any) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      w.Service,
		CorrelationID: sessionID,
		Payload:       kafka.MustMarshal(payload),
	}
	w.Events.Publish(orders.PartitionKey(sessionID), kafka.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// seenEvent is a Redis dedup fast path keyed by the gateway event id.
// The claim is provisional: clearEvent releases it when handling fails,
// so only durably handled deliveries stay deduplicated.
func (w *Orchestrator) seenEvent(ctx context.Context, eventID string) bool {
	if w.Redis == nil || eventID == "" {
		return false
	}
	dkey := fmt.Sprintf(redisx.KeyDedupWebhook, eventID)
	ok, err := w.Redis.SetNX(ctx, dkey, "1", redisx.TTLDedup).Result()
	if err != nil {
		// Redis trouble never blocks handling; the status gates still hold.
		return false
	}
	return !ok
}

func (w *Orchestrator) clearEvent(ctx context.Context, eventID string) {
	if w.Redis == nil || eventID == "" {
		return
	}
	_ = w.Redis.Del(ctx, fmt.Sprintf(redisx.KeyDedupWebhook, eventID)).Err()
}

// acquireLock takes a short per-session lock so two concurrent deliveries
// do not both reach the supplier. The CAS transitions remain the final
// guard when Redis is absent.
func (w *Orchestrator) acquireLock(ctx context.Context, sessionID string) bool {
	if w.Redis == nil {
		return true
	}
	key := fmt.Sprintf(redisx.KeyFulfillLock, sessionID)
	ok, err := w.Redis.SetNX(ctx, key, "1", redisx.TTLFulfillLock).Result()
	if err != nil {
		// Redis trouble must not block fulfillment; CAS still protects us.
		return true
	}
	return ok
}

func (w *Orchestrator) cacheStatus(ctx context.Context, order orders.Order) {
	if w.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, order.StripeSessionID)
	body := fmt.Sprintf(`{"payment_status":%q,"fulfillment_status":%q}`,
		order.PaymentStatus, order.FulfillmentStatus)
	_ = w.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
}

func (w *Orchestrator) callTimeout() time.Duration {
	if w.CallTimeout > 0 {
		return w.CallTimeout
	}
	return defaultCallTimeout
}
