package stripex

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v82"
)

// SessionLine is one cart position already validated against the catalog.
// UnitCents is the discounted unit price in minor units.
type SessionLine struct {
	ProductID int64
	Name      string
	UnitCents int64
	Quantity  int64
}

// Countries we are willing to ship to. The supplier's carrier coverage is
// the real constraint; this list only trims the checkout form.
var allowedShippingCountries = []string{
	"AT", "BE", "BG", "CH", "CY", "CZ", "DE", "DK", "EE", "ES", "FI", "FR",
	"GB", "GR", "HR", "HU", "IE", "IT", "LT", "LU", "LV", "MT", "NL", "NO",
	"PL", "PT", "RO", "SE", "SI", "SK",
}

// CreateCheckoutSession opens a hosted checkout with manual capture, so
// funds are only held until fulfillment confirms. Each line carries our
// catalog product id in metadata; the webhook side maps it back.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, lines []SessionLine, successURL, cancelURL string) (url, sessionID string, err error) {
	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(lines))
	for _, l := range lines {
		items = append(items, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(l.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyEUR)),
				UnitAmount: stripe.Int64(l.UnitCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(l.Name),
					Metadata: map[string]string{
						metadataProductID: strconv.FormatInt(l.ProductID, 10),
					},
				},
			},
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          items,
		SuccessURL:         stripe.String(successURL),
		CancelURL:          stripe.String(cancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		},
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(allowedShippingCountries),
		},
	}
	params.Context = ctx

	sess, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return "", "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, sess.ID, nil
}
