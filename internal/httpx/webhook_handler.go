package httpx

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pluteo/webshop/internal/fulfillment"
)

// WebhookHandler receives the payment gateway's webhook POSTs. The raw
// body is required for signature verification, so no middleware may parse
// it first.
type WebhookHandler struct {
	Orchestrator *fulfillment.Orchestrator
	Log          *zap.Logger
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/api/stripe-webhooks", h.handle)
}

// handle acks with 200 once an event is durably handled, including handled
// failure outcomes: the order row records the failure, so a gateway retry
// would add nothing. Non-200 is reserved for verification failures and
// internal faults, where a retry can still help.
func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	err = h.Orchestrator.HandleEvent(r.Context(), body, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, fulfillment.ErrBadSignature):
		h.Log.Warn("webhook signature verification failed", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "signature verification failed"})
	default:
		h.Log.Error("webhook handling failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
