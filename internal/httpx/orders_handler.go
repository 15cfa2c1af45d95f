package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pluteo/webshop/internal/catalog"
	"github.com/pluteo/webshop/internal/orders"
	"github.com/pluteo/webshop/internal/redisx"
	"github.com/pluteo/webshop/internal/stripex"
)

type OrdersHandler struct {
	Repo        *orders.Repo
	Catalog     *catalog.Store
	Gateway     *stripex.Gateway
	Redis       *redis.Client
	FrontendURL string
	Log         *zap.Logger
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/api/checkout/session", h.createCheckoutSession)
	r.Get("/api/orders/{sessionID}", h.getOrder)
	r.Get("/api/orders/{sessionID}/status", h.getOrderStatus)
	r.Get("/api/products", h.listProducts)
}

type cartItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type checkoutReq struct {
	Items []cartItem `json:"items"`
}

func (h *OrdersHandler) createCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cart items are required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	lines := make([]stripex.SessionLine, 0, len(req.Items))
	for _, it := range req.Items {
		if it.ProductID <= 0 || it.Quantity <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product id or quantity"})
			return
		}
		p, err := h.Catalog.GetProduct(ctx, it.ProductID)
		if errors.Is(err, catalog.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("product %d not found", it.ProductID)})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "catalog unavailable"})
			return
		}
		if p.StockQuantity < int(it.Quantity) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": fmt.Sprintf("%s is out of stock", p.Name)})
			return
		}
		unit := p.DiscountedUnitCents()
		if unit <= 0 {
			h.Log.Error("product has invalid price", zap.Int64("product_id", p.ID), zap.Int64("unit_cents", unit))
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid price for product %s", p.Name)})
			return
		}
		lines = append(lines, stripex.SessionLine{
			ProductID: p.ID,
			Name:      p.Name,
			UnitCents: unit,
			Quantity:  it.Quantity,
		})
	}

	url, sessionID, err := h.Gateway.CreateCheckoutSession(ctx, lines,
		h.FrontendURL+"/success?session_id={CHECKOUT_SESSION_ID}",
		h.FrontendURL+"/cancel",
	)
	if err != nil {
		h.Log.Error("checkout session creation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create checkout session"})
		return
	}
	h.Log.Info("checkout session created", zap.String("session", sessionID), zap.Int("lines", len(lines)))
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type orderResp struct {
	StripeSessionID   string                   `json:"stripe_session_id"`
	CustomerEmail     string                   `json:"customer_email,omitempty"`
	CustomerName      string                   `json:"customer_name,omitempty"`
	ShippingAddress   orders.Address           `json:"shipping_address"`
	TotalCents        int64                    `json:"total_cents"`
	Currency          string                   `json:"currency"`
	Items             []orders.LineItem        `json:"items"`
	PaymentStatus     orders.PaymentStatus     `json:"payment_status"`
	FulfillmentStatus orders.FulfillmentStatus `json:"fulfillment_status"`
	SupplierOrderRef  string                   `json:"supplier_order_ref,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing session id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Repo.GetBySessionID(ctx, sessionID)
	if errors.Is(err, orders.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, orderResp{
		StripeSessionID:   o.StripeSessionID,
		CustomerEmail:     o.CustomerEmail,
		CustomerName:      o.CustomerName,
		ShippingAddress:   o.ShippingAddress,
		TotalCents:        o.TotalCents,
		Currency:          o.Currency,
		Items:             o.Items,
		PaymentStatus:     o.PaymentStatus,
		FulfillmentStatus: o.FulfillmentStatus,
		SupplierOrderRef:  o.SupplierOrderRef,
		CreatedAt:         o.CreatedAt,
	})
}

// getOrderStatus is the lightweight endpoint the success/failure page
// polls. Redis fast path first, DB as the truth.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing session id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, sessionID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s))
			return
		}
	}

	o, err := h.Repo.GetBySessionID(ctx, sessionID)
	if errors.Is(err, orders.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	body := map[string]any{
		"payment_status":     o.PaymentStatus,
		"fulfillment_status": o.FulfillmentStatus,
	}
	b, _ := json.Marshal(body)
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

type productResp struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	PriceCents     int64  `json:"price_cents"`
	SalePercentage int    `json:"sale_percentage,omitempty"`
	InStock        bool   `json:"in_stock"`
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.ListProducts(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	out := make([]productResp, 0, len(ps))
	for _, p := range ps {
		out = append(out, productResp{
			ID:             p.ID,
			Name:           p.Name,
			PriceCents:     p.DiscountedUnitCents(),
			SalePercentage: p.SalePercentage,
			InStock:        p.StockQuantity > 0,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
