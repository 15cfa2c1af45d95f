// Package stripex wraps the Stripe API behind the orchestrator's
// PaymentGateway port: webhook verification, line-item expansion and the
// capture/cancel/refund operations on manual-capture payment intents.
package stripex

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/pluteo/webshop/internal/fulfillment"
	"github.com/pluteo/webshop/internal/orders"
)

// metadataProductID is the line-item product metadata key carrying our
// catalog product id, set at session creation time.
const metadataProductID = "productId"

type Gateway struct {
	sc            *client.API
	webhookSecret string
	log           *zap.Logger
}

func New(secretKey, webhookSecret string, log *zap.Logger) *Gateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Gateway{sc: sc, webhookSecret: webhookSecret, log: log}
}

// VerifyAndParse checks the webhook signature against the shared secret
// and decodes the event. Verification failure wraps ErrBadSignature and
// must never be followed by any side effect. Events other than a
// completed checkout come back with Completed=false and are acked as-is.
func (g *Gateway) VerifyAndParse(ctx context.Context, payload []byte, sigHeader string) (fulfillment.CheckoutEvent, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, g.webhookSecret)
	if err != nil {
		return fulfillment.CheckoutEvent{}, fmt.Errorf("%w: %v", fulfillment.ErrBadSignature, err)
	}
	if event.Type != "checkout.session.completed" {
		return fulfillment.CheckoutEvent{EventID: event.ID, Type: string(event.Type)}, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fulfillment.CheckoutEvent{}, fmt.Errorf("decode checkout session: %w", err)
	}

	ev := fulfillment.CheckoutEvent{
		EventID:         event.ID,
		Type:            string(event.Type),
		Completed:       true,
		SessionID:       sess.ID,
		Currency:        string(sess.Currency),
		TotalCents:      sess.AmountTotal,
		AlreadyCaptured: sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	if sess.PaymentIntent != nil {
		ev.PaymentIntentID = sess.PaymentIntent.ID
	}
	if cd := sess.CustomerDetails; cd != nil {
		ev.Email = cd.Email
		ev.Name = cd.Name
		ev.Phone = cd.Phone
	}
	ev.Address, ev.Name = shippingAddress(&sess, ev.Name)

	items, err := g.listLineItems(ctx, sess.ID)
	if err != nil {
		return fulfillment.CheckoutEvent{}, err
	}
	ev.Items = items
	return ev, nil
}

// shippingAddress prefers the shipping details collected at checkout and
// falls back to the billing customer details, like the checkout UI does.
func shippingAddress(sess *stripe.CheckoutSession, name string) (orders.Address, string) {
	var addr *stripe.Address
	if ci := sess.CollectedInformation; ci != nil && ci.ShippingDetails != nil {
		addr = ci.ShippingDetails.Address
		if ci.ShippingDetails.Name != "" {
			name = ci.ShippingDetails.Name
		}
	} else if cd := sess.CustomerDetails; cd != nil {
		addr = cd.Address
	}
	out := orders.Address{Name: name}
	if addr != nil {
		out.Line1 = addr.Line1
		out.City = addr.City
		out.PostalCode = addr.PostalCode
		out.Country = addr.Country
	}
	return out, name
}

func (g *Gateway) listLineItems(ctx context.Context, sessionID string) ([]fulfillment.EventLineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Context = ctx
	params.AddExpand("data.price.product")

	var out []fulfillment.EventLineItem
	iter := g.sc.CheckoutSessions.ListLineItems(params)
	for iter.Next() {
		li := iter.LineItem()
		item := fulfillment.EventLineItem{
			Description: li.Description,
			Quantity:    li.Quantity,
			AmountCents: li.AmountTotal,
		}
		if li.Price != nil && li.Price.Product != nil {
			if raw, ok := li.Price.Product.Metadata[metadataProductID]; ok {
				if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
					item.ProductID = id
				} else {
					g.log.Warn("line item carries unparsable product id",
						zap.String("session", sessionID), zap.String("raw", raw))
				}
			}
		}
		out = append(out, item)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list line items for %s: %w", sessionID, err)
	}
	return out, nil
}

// Capture finalizes a manual-capture authorization, moving the funds.
func (g *Gateway) Capture(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if _, err := g.sc.PaymentIntents.Capture(intentID, params); err != nil {
		return fmt.Errorf("capture %s: %w", intentID, err)
	}
	return nil
}

// CancelAuthorization releases a hold that was never captured.
func (g *Gateway) CancelAuthorization(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := g.sc.PaymentIntents.Cancel(intentID, params); err != nil {
		return fmt.Errorf("cancel %s: %w", intentID, err)
	}
	return nil
}

// Refund returns money that was already captured.
func (g *Gateway) Refund(ctx context.Context, intentID string) error {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	params.Context = ctx
	if _, err := g.sc.Refunds.New(params); err != nil {
		return fmt.Errorf("refund %s: %w", intentID, err)
	}
	return nil
}
