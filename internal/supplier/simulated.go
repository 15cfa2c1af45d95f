package supplier

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Simulated stands in for the live supplier when the upstream sandbox is
// unusable. It is selected by configuration (SUPPLIER_MODE=simulated);
// production code paths never branch on it inline.
type Simulated struct {
	Log *zap.Logger
}

func (s *Simulated) PlaceOrder(_ context.Context, req OrderRequest) (string, error) {
	if len(req.Items) == 0 {
		return "", &PlacementError{Phase: PhaseCheck, Reason: "no products in order"}
	}
	ref := "SIM_" + strings.ToUpper(uuid.NewString()[:8])
	s.Log.Info("simulated supplier accepted order",
		zap.String("internal_reference", req.InternalReference),
		zap.String("supplier_ref", ref),
		zap.Int("items", len(req.Items)))
	return ref, nil
}
