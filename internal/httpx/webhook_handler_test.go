package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pluteo/webshop/internal/fulfillment"
)

// stubGateway only drives the verification outcome; the not-completed
// event short-circuits the pipeline before any other port is touched.
type stubGateway struct {
	err error
}

func (s *stubGateway) VerifyAndParse(context.Context, []byte, string) (fulfillment.CheckoutEvent, error) {
	if s.err != nil {
		return fulfillment.CheckoutEvent{}, s.err
	}
	return fulfillment.CheckoutEvent{Type: "payment_intent.created", Completed: false}, nil
}
func (s *stubGateway) Capture(context.Context, string) error             { return nil }
func (s *stubGateway) CancelAuthorization(context.Context, string) error { return nil }
func (s *stubGateway) Refund(context.Context, string) error              { return nil }

func newWebhookServer(gw *stubGateway) *httptest.Server {
	orch := &fulfillment.Orchestrator{Payments: gw, Log: zap.NewNop()}
	r := NewRouter()
	h := &WebhookHandler{Orchestrator: orch, Log: zap.NewNop()}
	h.Register(r)
	return httptest.NewServer(r)
}

func TestWebhook_BadSignatureIs400(t *testing.T) {
	srv := newWebhookServer(&stubGateway{err: fulfillment.ErrBadSignature})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/stripe-webhooks", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhook_IgnoredEventIsAcked(t *testing.T) {
	srv := newWebhookServer(&stubGateway{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/stripe-webhooks", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebhook_InternalFaultIs500(t *testing.T) {
	srv := newWebhookServer(&stubGateway{err: errors.New("upstream api down")})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/stripe-webhooks", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
