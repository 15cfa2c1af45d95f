package supplier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectCarrier(t *testing.T) {
	available := []Carrier{
		{ID: "1", Name: "Correos"},
		{ID: "2", Name: "GLS"},
		{ID: "3", Name: "DHL"},
	}
	priority := []string{"gls", "dhl"}

	t.Run("first priority match wins", func(t *testing.T) {
		got := SelectCarrier(available, "ES", nil, priority, "standard shipment")
		assert.Equal(t, "GLS", got)
	})

	t.Run("falls through to second priority", func(t *testing.T) {
		got := SelectCarrier(available[:1], "ES", nil, priority, "standard shipment")
		assert.Equal(t, "standard shipment", got)

		got = SelectCarrier([]Carrier{{Name: "DHL"}}, "ES", nil, priority, "standard shipment")
		assert.Equal(t, "DHL", got)
	})

	t.Run("no match falls back to default", func(t *testing.T) {
		got := SelectCarrier(nil, "ES", nil, priority, "standard shipment")
		assert.Equal(t, "standard shipment", got)
	})

	t.Run("country restriction filters carrier", func(t *testing.T) {
		restricted := []Carrier{
			{Name: "GLS", ShippingCountries: []string{"ES", "PT"}},
			{Name: "DHL"},
		}
		got := SelectCarrier(restricted, "HR", nil, priority, "standard shipment")
		assert.Equal(t, "DHL", got)
	})

	t.Run("product exclusion filters carrier", func(t *testing.T) {
		restricted := []Carrier{
			{Name: "GLS", ExcludedReferences: []string{"S0103120"}},
			{Name: "DHL"},
		}
		got := SelectCarrier(restricted, "ES", []string{"S0103120"}, priority, "standard shipment")
		assert.Equal(t, "DHL", got)
	})

	t.Run("matching is case insensitive", func(t *testing.T) {
		got := SelectCarrier([]Carrier{{Name: "gls"}}, "ES", nil, []string{"GLS"}, "fallback")
		assert.Equal(t, "gls", got)
	})
}
