package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client implements order placement against the supplier's REST API.
type Client struct {
	BaseURL         string
	APIKey          string
	HTTP            *http.Client
	CarrierPriority []string // from config, first acceptable match wins
	DefaultCarrier  string   // from config, used when no priority carrier matches
	Log             *zap.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, priority []string, fallback string, log *zap.Logger) *Client {
	return &Client{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		APIKey:          apiKey,
		HTTP:            &http.Client{Timeout: timeout},
		CarrierPriority: priority,
		DefaultCarrier:  fallback,
		Log:             log,
	}
}

type wireCarrier struct {
	Name string `json:"name"`
}

type wireAddress struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Country   string `json:"country"`
	Postcode  string `json:"postcode"`
	Town      string `json:"town"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Comment   string `json:"comment"`
}

type wireOrder struct {
	InternalReference string        `json:"internalReference"`
	Language          string        `json:"language"`
	PaymentMethod     string        `json:"paymentMethod"`
	Carriers          []wireCarrier `json:"carriers,omitempty"`
	ShippingAddress   wireAddress   `json:"shippingAddress"`
	Products          []LineItem    `json:"products"`
}

type wirePayload struct {
	Order wireOrder `json:"order"`
}

type apiError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// orderResponse covers check and create. The API sometimes reports
// structural problems as an errors list inside a 200 body.
type orderResponse struct {
	ID       json.Number `json:"id"`
	OrderID  json.Number `json:"order_id"`
	Message  string      `json:"message,omitempty"`
	Errors   []apiError  `json:"errors,omitempty"`
	Warnings []apiError  `json:"warnings,omitempty"`
}

// PlaceOrder runs the supplier's required sequence: validate the order,
// pick a carrier for the destination, then create. Create is billable on
// the supplier's side, so callers must gate it on fulfillment status.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	payload := c.buildPayload(req, "")

	// Check phase: same shape as create, rejected orders never reach the
	// billable endpoint.
	var checkResp orderResponse
	if err := c.post(ctx, "/rest/order/check/multishipping.json", payload, &checkResp); err != nil {
		return "", &PlacementError{Phase: PhaseCheck, Reason: err.Error()}
	}
	if len(checkResp.Errors) > 0 {
		return "", &PlacementError{Phase: PhaseCheck, Reason: joinErrors(checkResp.Errors)}
	}

	carriers, err := c.ListCarriers(ctx, req.Address.Country, req.Address.PostalCode)
	if err != nil {
		return "", &PlacementError{Phase: PhaseCarriers, Reason: err.Error()}
	}
	refs := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		refs = append(refs, it.Reference)
	}
	carrier := SelectCarrier(carriers, req.Address.Country, refs, c.CarrierPriority, c.DefaultCarrier)
	c.Log.Info("carrier selected",
		zap.String("carrier", carrier),
		zap.String("country", req.Address.Country),
		zap.Int("available", len(carriers)))

	payload = c.buildPayload(req, carrier)
	var createResp orderResponse
	if err := c.post(ctx, "/rest/order/create/multishipping.json", payload, &createResp); err != nil {
		return "", &PlacementError{Phase: PhaseCreate, Reason: err.Error()}
	}
	if len(createResp.Errors) > 0 {
		return "", &PlacementError{Phase: PhaseCreate, Reason: joinErrors(createResp.Errors)}
	}
	ref := createResp.ID.String()
	if ref == "" {
		ref = createResp.OrderID.String()
	}
	if ref == "" {
		return "", &PlacementError{Phase: PhaseCreate, Reason: "create response carried no order reference"}
	}
	return ref, nil
}

// ListCarriers queries shipping options for a destination.
func (c *Client) ListCarriers(ctx context.Context, country, postalCode string) ([]Carrier, error) {
	q := url.Values{}
	q.Set("isoCountry", country)
	q.Set("postalCode", postalCode)

	var out []Carrier
	if err := c.get(ctx, "/rest/shipping/carriers.json?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StockFeedItem is one row of the supplier's stock-by-handling-days feed.
type StockFeedItem struct {
	SKU    string `json:"sku"`
	Stocks []struct {
		Quantity int `json:"quantity"`
	} `json:"stocks"`
}

// TotalQuantity sums stock across all handling-day buckets.
func (s StockFeedItem) TotalQuantity() int {
	total := 0
	for _, st := range s.Stocks {
		total += st.Quantity
	}
	return total
}

// FetchStockFeed pulls the full stock feed; the stock sync job filters it
// down to the SKUs the catalog actually carries.
func (c *Client) FetchStockFeed(ctx context.Context) ([]StockFeedItem, error) {
	var out []StockFeedItem
	if err := c.get(ctx, "/rest/catalog/productsstockbyhandlingdays.json", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) buildPayload(req OrderRequest, carrier string) wirePayload {
	first, last := splitName(req.Name)
	order := wireOrder{
		InternalReference: req.InternalReference,
		Language:          "en",
		PaymentMethod:     "moneybox",
		ShippingAddress: wireAddress{
			FirstName: first,
			LastName:  last,
			Country:   req.Address.Country,
			Postcode:  req.Address.PostalCode,
			Town:      req.Address.City,
			Address:   req.Address.Line1,
			Phone:     req.Phone,
			Email:     req.Email,
		},
		Products: req.Items,
	}
	if carrier != "" {
		order.Carriers = []wireCarrier{{Name: strings.ToLower(carrier)}}
	}
	return wirePayload{Order: order}
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("supplier request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read supplier response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("supplier %s returned %d: %s", req.URL.Path, resp.StatusCode, truncate(string(raw), 300))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode supplier response: %w", err)
	}
	return nil
}

func joinErrors(errs []apiError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

func splitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "Customer", "Unknown"
	}
	parts := strings.SplitN(full, " ", 2)
	if len(parts) == 1 {
		return parts[0], parts[0]
	}
	return parts[0], parts[1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
