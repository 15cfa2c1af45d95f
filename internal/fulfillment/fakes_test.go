package fulfillment

import (
	"context"
	"errors"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/pluteo/webshop/internal/catalog"
	"github.com/pluteo/webshop/internal/orders"
	"github.com/pluteo/webshop/internal/supplier"
)

type fakeGateway struct {
	mu        sync.Mutex
	ev        CheckoutEvent
	verifyErr error

	captureErr error
	cancelErr  error
	refundErr  error

	captured []string
	canceled []string
	refunded []string
}

func (g *fakeGateway) VerifyAndParse(_ context.Context, _ []byte, _ string) (CheckoutEvent, error) {
	if g.verifyErr != nil {
		return CheckoutEvent{}, g.verifyErr
	}
	return g.ev, nil
}

func (g *fakeGateway) Capture(_ context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.captureErr != nil {
		return g.captureErr
	}
	g.captured = append(g.captured, intentID)
	return nil
}

func (g *fakeGateway) CancelAuthorization(_ context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.canceled = append(g.canceled, intentID)
	return nil
}

func (g *fakeGateway) Refund(_ context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunded = append(g.refunded, intentID)
	return nil
}

type fakeSupplier struct {
	mu      sync.Mutex
	ref     string
	err     error
	calls   int
	lastReq supplier.OrderRequest
}

func (s *fakeSupplier) PlaceOrder(_ context.Context, req supplier.OrderRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return "", s.err
	}
	return s.ref, nil
}

type fakeRepo struct {
	mu     sync.Mutex
	orders map[string]orders.Order
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: make(map[string]orders.Order)}
}

func (r *fakeRepo) FindOrCreate(_ context.Context, o orders.Order) (orders.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.orders[o.StripeSessionID]; ok {
		return existing, false, nil
	}
	o.PaymentStatus = orders.PaymentAuthorized
	o.FulfillmentStatus = orders.FulfillmentPending
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	r.orders[o.StripeSessionID] = o
	return o, true, nil
}

func (r *fakeRepo) GetBySessionID(_ context.Context, sessionID string) (orders.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[sessionID]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (r *fakeRepo) CASFulfillment(_ context.Context, sessionID string, from, to orders.FulfillmentStatus, supplierRef, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[sessionID]
	if !ok || o.FulfillmentStatus != from {
		return false, nil
	}
	o.FulfillmentStatus = to
	if supplierRef != "" {
		o.SupplierOrderRef = supplierRef
	}
	if reason != "" {
		o.FailureReason = reason
	}
	r.orders[sessionID] = o
	return true, nil
}

func (r *fakeRepo) CASPayment(_ context.Context, sessionID string, from, to orders.PaymentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[sessionID]
	if !ok || o.PaymentStatus != from {
		return false, nil
	}
	o.PaymentStatus = to
	r.orders[sessionID] = o
	return true, nil
}

// failOnceRepo injects one storage fault on the first FindOrCreate and
// then behaves normally, like a connection blip during a delivery.
type failOnceRepo struct {
	*fakeRepo
	failed bool
}

func (r *failOnceRepo) FindOrCreate(ctx context.Context, o orders.Order) (orders.Order, bool, error) {
	if !r.failed {
		r.failed = true
		return orders.Order{}, false, errors.New("connection reset by peer")
	}
	return r.fakeRepo.FindOrCreate(ctx, o)
}

type fakeCatalog struct {
	products map[int64]catalog.Product
}

func (c *fakeCatalog) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *fakeNotifier) Send(to, subject, htmlBody string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

type fakeEvents struct {
	mu        sync.Mutex
	published []string // event types from headers
}

func (e *fakeEvents) Publish(_, _ []byte, headers ...kafkago.Header) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, h := range headers {
		if h.Key == "x-event-type" {
			e.published = append(e.published, string(h.Value))
		}
	}
}
