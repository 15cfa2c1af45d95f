package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("order not found")

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `stripe_session_id, payment_intent_id, customer_email, customer_name,
	ship_name, ship_line1, ship_city, ship_postal_code, ship_country,
	total_cents, currency, items, payment_status, fulfillment_status,
	supplier_order_ref, failure_reason, created_at, updated_at`

// FindOrCreate inserts the order if no row exists for its session ID and
// returns the persisted row either way. The unique index on
// stripe_session_id makes this safe under concurrent webhook redelivery:
// exactly one insert wins, everyone re-reads the winner.
func (r *Repo) FindOrCreate(ctx context.Context, o Order) (Order, bool, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return Order{}, false, fmt.Errorf("marshal items: %w", err)
	}

	ct, err := r.DB.Exec(ctx, `
		INSERT INTO orders(stripe_session_id, payment_intent_id, customer_email, customer_name,
			ship_name, ship_line1, ship_city, ship_postal_code, ship_country,
			total_cents, currency, items, payment_status, fulfillment_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (stripe_session_id) DO NOTHING`,
		o.StripeSessionID, o.PaymentIntentID, o.CustomerEmail, o.CustomerName,
		o.ShippingAddress.Name, o.ShippingAddress.Line1, o.ShippingAddress.City,
		o.ShippingAddress.PostalCode, o.ShippingAddress.Country,
		o.TotalCents, o.Currency, items, PaymentAuthorized, FulfillmentPending,
	)
	if err != nil {
		return Order{}, false, fmt.Errorf("insert order: %w", err)
	}

	got, err := r.GetBySessionID(ctx, o.StripeSessionID)
	if err != nil {
		return Order{}, false, err
	}
	return got, ct.RowsAffected() == 1, nil
}

func (r *Repo) GetBySessionID(ctx context.Context, sessionID string) (Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE stripe_session_id=$1`, sessionID)
	return scanOrder(row)
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var items []byte
	err := row.Scan(
		&o.StripeSessionID, &o.PaymentIntentID, &o.CustomerEmail, &o.CustomerName,
		&o.ShippingAddress.Name, &o.ShippingAddress.Line1, &o.ShippingAddress.City,
		&o.ShippingAddress.PostalCode, &o.ShippingAddress.Country,
		&o.TotalCents, &o.Currency, &items, &o.PaymentStatus, &o.FulfillmentStatus,
		&o.SupplierOrderRef, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return Order{}, fmt.Errorf("unmarshal items: %w", err)
		}
	}
	return o, nil
}

// CASFulfillment transitions fulfillment_status only if the row is still
// in the expected prior state. Returns false when another delivery won the
// race; the caller must then skip the billable side effect.
func (r *Repo) CASFulfillment(ctx context.Context, sessionID string, from, to FulfillmentStatus, supplierRef, reason string) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("invalid fulfillment transition %s -> %s", from, to)
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET fulfillment_status=$3,
		    supplier_order_ref = CASE WHEN $4 <> '' THEN $4 ELSE supplier_order_ref END,
		    failure_reason     = CASE WHEN $5 <> '' THEN $5 ELSE failure_reason END,
		    updated_at = now()
		WHERE stripe_session_id=$1 AND fulfillment_status=$2`,
		sessionID, from, to, supplierRef, reason,
	)
	if err != nil {
		return false, fmt.Errorf("cas fulfillment: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// CASPayment transitions payment_status with the same compare-and-set
// discipline as CASFulfillment.
func (r *Repo) CASPayment(ctx context.Context, sessionID string, from, to PaymentStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("invalid payment transition %s -> %s", from, to)
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_status=$3, updated_at=now()
		WHERE stripe_session_id=$1 AND payment_status=$2`,
		sessionID, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("cas payment: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
